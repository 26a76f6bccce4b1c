package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/squadhq/intake/internal/form/model"
)

// UploadService stores step attachments and describes them as model.Attachment.
type UploadService struct {
	driver StorageDriver
}

func NewUploadService(driver StorageDriver) *UploadService {
	return &UploadService{driver: driver}
}

// Upload checks the file against the attachment policy, saves it and returns
// the attachment reference to put on a process step.
func (s *UploadService) Upload(ctx context.Context, filename string, body io.Reader, size int64, mime string) (*model.Attachment, error) {
	if mime == "" {
		mime = "application/octet-stream"
	}
	if err := checkFile(filename, mime, size); err != nil {
		return nil, err
	}

	id, key := newKey(filename)
	if err := s.driver.Save(ctx, key, io.LimitReader(body, MaxFileSize), mime); err != nil {
		return nil, fmt.Errorf("storage driver failed: %w", err)
	}

	url, err := s.driver.GenerateURL(ctx, key, 0)
	if err != nil {
		if delErr := s.driver.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to cleanup orphaned attachment", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to generate URL: %w", err)
	}

	slog.InfoContext(ctx, "attachment stored", "id", id, "key", key, "size", size)
	return &model.Attachment{
		Key:      key,
		Name:     filepath.Base(filename),
		URL:      url,
		Size:     size,
		MimeType: mime,
	}, nil
}

// Download streams an attachment and its content type.
func (s *UploadService) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := checkKey(key); err != nil {
		return nil, "", err
	}
	return s.driver.Get(ctx, key)
}

// Remove deletes an attachment that a client dropped from a step.
func (s *UploadService) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.driver.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	slog.InfoContext(ctx, "attachment removed", "key", key)
	return nil
}
