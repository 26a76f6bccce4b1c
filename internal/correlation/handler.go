package correlation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const maxReceiveBodyBytes = 5 << 20

// ReceiveRequest is the body the analysis pipeline posts back.
type ReceiveRequest struct {
	RequestID    string         `json:"requestId"`
	AnalysisData map[string]any `json:"analysisData"`
}

// Handler exposes a Store over HTTP.
type Handler struct {
	store Store
	now   func() time.Time
}

// NewHandler creates a handler over store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

// Register mounts the routes on mux below basePath ("" for the root).
func (h *Handler) Register(mux *http.ServeMux, basePath string) {
	mux.HandleFunc("POST "+basePath+"/analysis/receive", h.HandleReceive)
	mux.HandleFunc("GET "+basePath+"/analysis/{requestId}", h.HandleGet)
	mux.HandleFunc("GET "+basePath+"/analysis/{requestId}/status", h.HandleStatus)
	mux.HandleFunc("GET "+basePath+"/health", h.HandleHealth)
}

// HandleReceive handles POST /analysis/receive
// The pipeline delivers its result here; the latest delivery per requestId wins.
func (h *Handler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReceiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReceiveBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if _, err := h.store.Put(ctx, req.RequestID, req.AnalysisData); err != nil {
		if errors.Is(err, ErrRequestIDRequired) {
			slog.WarnContext(ctx, "analysis delivery rejected", "error", err)
			writeJSONError(w, http.StatusBadRequest, "requestId is required")
			return
		}
		slog.ErrorContext(ctx, "failed to store analysis data", "requestId", req.RequestID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store analysis data")
		return
	}

	slog.InfoContext(ctx, "analysis data stored", "requestId", req.RequestID, "fields", len(req.AnalysisData))

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Analysis data received and stored",
		"requestId": req.RequestID,
	})
}

// HandleGet handles GET /analysis/{requestId}
// A 404 is the normal answer until the pipeline has delivered.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestId")

	rec, err := h.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, map[string]any{
				"error":     "Analysis data not found",
				"requestId": requestID,
				"ready":     false,
			})
			return
		}
		slog.ErrorContext(ctx, "failed to fetch analysis data", "requestId", requestID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch analysis data")
		return
	}

	writeJSONResponse(w, http.StatusOK, rec)
}

// HandleStatus handles GET /analysis/{requestId}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestId")

	status, err := h.store.Status(ctx, requestID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check analysis status", "requestId", requestID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to check analysis status")
		return
	}

	writeJSONResponse(w, http.StatusOK, status)
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(TimestampLayout),
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]string{"error": message})
}
