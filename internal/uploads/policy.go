package uploads

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// MaxFileSize caps a single attachment.
const MaxFileSize = 10 << 20

// AcceptedExtensions are the file types a process step accepts. Any image/*
// content type is accepted as well.
var AcceptedExtensions = []string{".pdf", ".doc", ".docx", ".png", ".jpg", ".jpeg", ".txt", ".xlsx", ".xls"}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = fmt.Errorf("file exceeds %d MiB", MaxFileSize>>20)
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidKey      = errors.New("invalid attachment key")
)

// checkFile applies the attachment policy to an incoming file.
func checkFile(filename, mime string, size int64) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if slices.Contains(AcceptedExtensions, ext) || strings.HasPrefix(mime, "image/") {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Base(filename))
}

// newKey builds a storage key of the form <uuid><ext>.
func newKey(filename string) (uuid.UUID, string) {
	id := uuid.New()
	return id, id.String() + strings.ToLower(filepath.Ext(filename))
}

// checkKey rejects anything that newKey could not have produced, so client
// supplied keys never reach a driver path.
func checkKey(key string) error {
	ext := filepath.Ext(key)
	stem := strings.TrimSuffix(key, ext)
	if _, err := uuid.Parse(stem); err != nil || len(stem) != 36 {
		return ErrInvalidKey
	}
	return nil
}
