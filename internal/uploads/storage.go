package uploads

import (
	"context"
	"io"
	"time"

	"github.com/squadhq/intake/internal/uploads/drivers"
)

// ErrObjectNotFound is returned by drivers when no object exists under a key.
var ErrObjectNotFound = drivers.ErrObjectNotFound

// StorageDriver is the blob store behind step attachments.
type StorageDriver interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get streams the object back together with its content type.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	// GenerateURL returns a link the wizard can show next to the attachment.
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
