package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadhq/intake/internal/form/model"
	"github.com/squadhq/intake/internal/uploads/drivers"
)

// fakeDriver is an in-memory StorageDriver.
type fakeDriver struct {
	objects        map[string][]byte
	types          map[string]string
	generateURLErr error
	deleted        []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeDriver) Save(_ context.Context, key string, body io.Reader, contentType string) error {
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = content
	f.types[key] = contentType
	return nil
}

func (f *fakeDriver) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, "", drivers.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), f.types[key], nil
}

func (f *fakeDriver) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeDriver) GenerateURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.generateURLErr != nil {
		return "", f.generateURLErr
	}
	return "/uploads/" + key, nil
}

func (f *fakeDriver) onlyKey(t *testing.T) string {
	t.Helper()
	require.Len(t, f.objects, 1)
	for k := range f.objects {
		return k
	}
	return ""
}

func TestUploadService_Upload(t *testing.T) {
	driver := newFakeDriver()
	service := NewUploadService(driver)

	content := []byte("%PDF-1.7")
	att, err := service.Upload(context.Background(), "Invoice Flow.PDF", bytes.NewReader(content), int64(len(content)), "application/pdf")
	require.NoError(t, err)

	key := driver.onlyKey(t)
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NoError(t, checkKey(key))
	assert.Equal(t, model.Attachment{
		Key:      key,
		Name:     "Invoice Flow.PDF",
		URL:      "/uploads/" + key,
		Size:     int64(len(content)),
		MimeType: "application/pdf",
	}, *att)
	assert.Equal(t, content, driver.objects[key])
}

func TestUploadService_Policy(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mime     string
		size     int64
		wantErr  error
	}{
		{name: "spreadsheet", filename: "costs.xlsx", mime: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", size: 10},
		{name: "any image by content type", filename: "diagram.webp", mime: "image/webp", size: 10},
		{name: "missing mime falls back to extension", filename: "notes.txt", size: 10},
		{name: "executable", filename: "setup.exe", mime: "application/octet-stream", size: 10, wantErr: ErrUnsupportedType},
		{name: "empty", filename: "notes.txt", mime: "text/plain", size: 0, wantErr: ErrEmptyFile},
		{name: "too large", filename: "scan.pdf", mime: "application/pdf", size: MaxFileSize + 1, wantErr: ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			_, err := NewUploadService(driver).Upload(context.Background(), tt.filename, strings.NewReader("data"), tt.size, tt.mime)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, driver.objects)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUploadService_GenerateURLFailureCleansUp(t *testing.T) {
	driver := newFakeDriver()
	driver.generateURLErr = io.ErrUnexpectedEOF

	_, err := NewUploadService(driver).Upload(context.Background(), "a.png", strings.NewReader("png"), 3, "image/png")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Len(t, driver.deleted, 1)
	assert.Empty(t, driver.objects)
}

func TestUploadService_RejectsForeignKeys(t *testing.T) {
	service := NewUploadService(newFakeDriver())
	for _, key := range []string{"../../etc/passwd", "abc.pdf", "", "0123abcd-0000-0000-0000-00000000000.pdf"} {
		_, _, err := service.Download(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, service.Remove(context.Background(), key), ErrInvalidKey, key)
	}
}

func newUploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHTTPHandler_Lifecycle(t *testing.T) {
	driver := newFakeDriver()
	mux := http.NewServeMux()
	NewHTTPHandler(NewUploadService(driver)).Register(mux, "")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newUploadRequest(t, "steps.txt", "text/plain", []byte("step one")))
	require.Equal(t, http.StatusCreated, w.Code)

	var att model.Attachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &att))
	assert.Equal(t, "steps.txt", att.Name)
	assert.Equal(t, "text/plain", att.MimeType)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+att.Key, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "step one", w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/uploads/"+att.Key, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+att.Key, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"file not found"}`, w.Body.String())
}

func TestHTTPHandler_Errors(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(NewUploadService(newFakeDriver())).Register(mux, "/api")

	w := httptest.NewRecorder()
	req := newUploadRequest(t, "run.sh", "application/x-sh", []byte("echo"))
	req.URL.Path = "/api/uploads"
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file type")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/uploads/not-a-key", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
