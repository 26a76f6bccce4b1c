package uploads

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// multipart overhead allowed on top of MaxFileSize
const formOverhead = 1 << 20

type HTTPHandler struct {
	service *UploadService
}

func NewHTTPHandler(service *UploadService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Register mounts the attachment routes on mux under basePath.
func (h *HTTPHandler) Register(mux *http.ServeMux, basePath string) {
	mux.HandleFunc("POST "+basePath+"/uploads", h.Upload)
	mux.HandleFunc("GET "+basePath+"/uploads/{key}", h.Download)
	mux.HandleFunc("DELETE "+basePath+"/uploads/{key}", h.Delete)
}

// Upload handles POST /uploads with a multipart "file" field.
func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	attachment, err := h.service.Upload(r.Context(), header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrEmptyFile):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrFileTooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "upload failed", "filename", header.Filename, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSONResponse(w, http.StatusCreated, attachment)
}

// Download handles GET /uploads/{key}.
func (h *HTTPHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	reader, contentType, err := h.service.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !errors.Is(err, ErrObjectNotFound) {
			slog.ErrorContext(r.Context(), "download failed", "key", key, "error", err)
		}
		writeJSONError(w, http.StatusNotFound, "file not found")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, reader); err != nil {
		slog.WarnContext(r.Context(), "download interrupted", "key", key, "error", err)
	}
}

// Delete handles DELETE /uploads/{key}.
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.service.Remove(r.Context(), key); err != nil {
		if errors.Is(err, ErrInvalidKey) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "delete failed", "key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]string{"error": message})
}
