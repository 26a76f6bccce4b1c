package desk

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/squadhq/intake/internal/form/model"
)

var (
	// ErrSubmissionNotFound is returned when no submission exists for a request id
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrEmptyAnalysis      = errors.New("analysis needs a clientDraft or data")
)

// DeliveryError means the correlation server did not accept an analysis.
type DeliveryError struct {
	RequestID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver analysis for %s: %v", e.RequestID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DraftField is the analysis key the wizard shows as the summary.
const DraftField = "clientDraft"

// Deliverer posts an analysis back to the correlation server.
type Deliverer interface {
	Deliver(ctx context.Context, requestID string, analysisData map[string]any) error
}

// Submission is a stored snapshot as shown by the desk API
type Submission struct {
	ID         uuid.UUID      `json:"id"`
	RequestID  string         `json:"requestId"`
	Payload    map[string]any `json:"payload"`
	Status     string         `json:"status"`
	Analysis   map[string]any `json:"analysis,omitempty"`
	LastError  string         `json:"lastError,omitempty"`
	AnalyzedAt *time.Time     `json:"analyzedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// AnalyzeRequest is an analyst's answer for one submission
type AnalyzeRequest struct {
	ClientDraft string         `json:"clientDraft"`
	Data        map[string]any `json:"data"`
}

// Options tune the desk service
type Options struct {
	AutoDraft      bool
	AutoDraftDelay time.Duration
}

// Service stands in for the analysis pipeline: it keeps received snapshots
// and delivers analyses for them to the correlation server.
type Service struct {
	store     *SubmissionStore
	deliverer Deliverer
	opts      Options
	sanitizer *bluemonday.Policy

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
	closed  bool
}

func NewService(store *SubmissionStore, deliverer Deliverer, opts Options) *Service {
	return &Service{
		store:     store,
		deliverer: deliverer,
		opts:      opts,
		sanitizer: bluemonday.StrictPolicy(),
		pending:   make(map[string]*time.Timer),
	}
}

// Receive validates and stores a dispatched snapshot. With auto-draft on, an
// analysis is drafted and delivered after the configured delay.
func (s *Service) Receive(ctx context.Context, payload map[string]any) (*Submission, error) {
	if err := ValidateSubmission(payload); err != nil {
		return nil, err
	}
	requestID, _ := payload[model.FieldRequestID].(string)

	rec := &SubmissionRecord{
		RequestID: requestID,
		ID:        uuid.New(),
		Payload:   JSONB(payload),
		Status:    StatusPending,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}
	slog.InfoContext(ctx, "submission received", "requestId", requestID, "id", rec.ID)

	if s.opts.AutoDraft {
		s.scheduleDraft(requestID, model.FormRecord(payload))
	}
	return toSubmission(rec), nil
}

func (s *Service) scheduleDraft(requestID string, payload model.FormRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.pending[requestID]; ok && t.Stop() {
		s.wg.Done()
	}

	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(s.opts.AutoDraftDelay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.pending[requestID] == timer {
			delete(s.pending, requestID)
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Analyze(ctx, requestID, AnalyzeRequest{ClientDraft: Draft(payload)}); err != nil {
			slog.Warn("auto draft failed", "requestId", requestID, "error", err)
		}
	})
	s.pending[requestID] = timer
}

// List returns a page of submissions, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, offset, limit int) ([]Submission, int64, error) {
	recs, total, err := s.store.List(ctx, status, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Submission, 0, len(recs))
	for i := range recs {
		out = append(out, *toSubmission(&recs[i]))
	}
	return out, total, nil
}

func (s *Service) Get(ctx context.Context, requestID string) (*Submission, error) {
	rec, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return toSubmission(rec), nil
}

// Analyze delivers an analysis for requestID to the correlation server and
// records the outcome. A failed delivery is stored as DELIVERY_FAILED and
// can be retried.
func (s *Service) Analyze(ctx context.Context, requestID string, req AnalyzeRequest) (*Submission, error) {
	if _, err := s.store.Get(ctx, requestID); err != nil {
		return nil, err
	}

	analysis := maps.Clone(req.Data)
	if analysis == nil {
		analysis = map[string]any{}
	}
	if draft := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(req.ClientDraft))); draft != "" {
		analysis[DraftField] = draft
	}
	if len(analysis) == 0 {
		return nil, ErrEmptyAnalysis
	}

	status, lastError := StatusAnalyzed, ""
	deliverErr := s.deliverer.Deliver(ctx, requestID, analysis)
	if deliverErr != nil {
		status, lastError = StatusDeliveryFailed, deliverErr.Error()
		slog.WarnContext(ctx, "analysis delivery failed", "requestId", requestID, "error", deliverErr)
	}

	if err := s.store.UpdateAnalysis(ctx, requestID, status, JSONB(analysis), lastError); err != nil {
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}
	if deliverErr != nil {
		return nil, &DeliveryError{RequestID: requestID, Err: deliverErr}
	}

	slog.InfoContext(ctx, "analysis delivered", "requestId", requestID)
	return s.Get(ctx, requestID)
}

// Close cancels drafts that have not started and waits for running ones.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.pending {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func toSubmission(rec *SubmissionRecord) *Submission {
	return &Submission{
		ID:         rec.ID,
		RequestID:  rec.RequestID,
		Payload:    rec.Payload,
		Status:     rec.Status,
		Analysis:   rec.Analysis,
		LastError:  rec.LastError,
		AnalyzedAt: rec.AnalyzedAt,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
