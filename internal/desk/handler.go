package desk

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/squadhq/intake/utils"
)

// Handler exposes the desk over HTTP
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Router builds the gin engine with the desk routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", h.HandleHealth)
	r.POST("/submissions", h.HandleReceive)
	r.GET("/submissions", h.HandleList)
	r.GET("/submissions/:requestId", h.HandleGet)
	r.POST("/submissions/:requestId/analysis", h.HandleAnalyze)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.InfoContext(c.Request.Context(), "desk request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// HandleReceive handles POST /submissions
// The dispatcher posts its snapshot here in place of the real pipeline.
func (h *Handler) HandleReceive(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	sub, err := h.service.Receive(c.Request.Context(), payload)
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Submission does not match the pipeline schema", "details": schemaErr.Errors})
			return
		}
		slog.ErrorContext(c.Request.Context(), "failed to receive submission", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store submission"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":   true,
		"message":   "Submission received",
		"requestId": sub.RequestID,
		"id":        sub.ID,
	})
}

// HandleList handles GET /submissions?status=&offset=&limit=
func (h *Handler) HandleList(c *gin.Context) {
	offset, limit := utils.ParsePaginationQuery(c.Query("offset"), c.Query("limit"))

	items, total, err := h.service.List(c.Request.Context(), c.Query("status"), offset, limit)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to list submissions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list submissions"})
		return
	}

	c.JSON(http.StatusOK, utils.Page[Submission]{Items: items, Total: total, Offset: offset, Limit: limit})
}

// HandleGet handles GET /submissions/:requestId
func (h *Handler) HandleGet(c *gin.Context) {
	requestID := c.Param("requestId")

	sub, err := h.service.Get(c.Request.Context(), requestID)
	if err != nil {
		h.writeLookupError(c, requestID, err, "Failed to get submission")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// HandleAnalyze handles POST /submissions/:requestId/analysis
// The analysis is forwarded to the correlation server, where the wizard's poller picks it up.
func (h *Handler) HandleAnalyze(c *gin.Context) {
	requestID := c.Param("requestId")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	sub, err := h.service.Analyze(c.Request.Context(), requestID, req)
	var deliveryErr *DeliveryError
	switch {
	case errors.Is(err, ErrEmptyAnalysis):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.As(err, &deliveryErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver analysis: " + deliveryErr.Err.Error(), "requestId": requestID})
		return
	case err != nil:
		h.writeLookupError(c, requestID, err, "Failed to analyze submission")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Analysis delivered",
		"submission": sub,
	})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "analysis-desk",
	})
}

func (h *Handler) writeLookupError(c *gin.Context, requestID string, err error, message string) {
	if errors.Is(err, ErrSubmissionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found", "requestId": requestID})
		return
	}
	slog.ErrorContext(c.Request.Context(), message, "requestId", requestID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
