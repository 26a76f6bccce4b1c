package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by Get when nothing is stored under the key.
var ErrObjectNotFound = errors.New("object not found")

const metaSuffix = ".meta"

// LocalFSDriver keeps attachments on local disk, fanned out over two levels
// of directories taken from the key prefix. The content type lives in a
// sidecar file next to the object.
type LocalFSDriver struct {
	baseDir   string
	publicURL string
}

// NewLocalFSDriver creates baseDir if needed. publicURL prefixes generated
// links, e.g. "/uploads".
func NewLocalFSDriver(baseDir, publicURL string) (*LocalFSDriver, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalFSDriver{baseDir: baseDir, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

func (d *LocalFSDriver) path(key string) string {
	if len(key) < 4 {
		return filepath.Join(d.baseDir, key)
	}
	return filepath.Join(d.baseDir, key[0:2], key[2:4], key)
}

// Save writes to a temporary file first and renames it into place, so a
// failed copy never leaves a partial object behind.
func (d *LocalFSDriver) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath := d.path(key)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save file content: %w", err)
	}

	if err := os.WriteFile(fullPath+metaSuffix, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(fullPath + metaSuffix)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (d *LocalFSDriver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath := d.path(key)
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if meta, err := os.ReadFile(fullPath + metaSuffix); err == nil {
		contentType = string(meta)
	}
	return f, contentType, nil
}

func (d *LocalFSDriver) Delete(ctx context.Context, key string) error {
	fullPath := d.path(key)
	_ = os.Remove(fullPath + metaSuffix)
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// GenerateURL ignores expires; local links do not expire.
func (d *LocalFSDriver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if d.publicURL == "" {
		return key, nil
	}
	return d.publicURL + "/" + key, nil
}
