package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/squadhq/intake/internal/dispatch"
	"github.com/squadhq/intake/internal/form/model"
	"github.com/squadhq/intake/internal/form/validation"
	"github.com/squadhq/intake/internal/poller"
)

// Dispatcher sends a completed record to the analysis pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, record model.FormRecord) (*dispatch.Receipt, error)
}

// Session drives one client through the intake steps. Each Submit method runs
// the step's gate, merges the step data and advances; a failed gate returns
// validation.Errors and leaves the step unchanged.
type Session struct {
	ctrl       *Controller
	validator  *validation.Validator
	dispatcher Dispatcher
	poller     *poller.Poller

	mu         sync.Mutex
	review     *Review
	submitting bool
}

// NewSession creates a session. A nil poller means the review never waits for
// an analysis.
func NewSession(d Dispatcher, p *poller.Poller) *Session {
	return &Session{
		ctrl:       NewController(),
		validator:  validation.New(),
		dispatcher: d,
		poller:     p,
	}
}

// Controller exposes the underlying step controller.
func (s *Session) Controller() *Controller {
	return s.ctrl
}

// Current returns the current step.
func (s *Session) Current() Step {
	return s.ctrl.Current()
}

// Load decodes the accumulated record into one of the step structs, for
// pre-filling a step when it is revisited.
func (s *Session) Load(v any) error {
	return s.ctrl.Record().Decode(v)
}

func (s *Session) SubmitProjectBasics(in model.ProjectBasics) error {
	return s.submit(StepProjectBasics, in)
}

func (s *Session) SubmitProcessDiscovery(in model.ProcessDiscovery) error {
	if in.ProcessSteps == nil {
		in.ProcessSteps = []model.ProcessStep{}
	}
	return s.submit(StepProcessDiscovery, in)
}

func (s *Session) SubmitPainPoints(in model.PainPointAnalysis) error {
	if in.ImpactAssessment == nil {
		in.ImpactAssessment = map[string]int{}
	}
	return s.submit(StepPainPoints, in)
}

// SubmitGoals runs the final data gate, dispatches the record and enters the
// review step, which starts polling for the analysis. A dispatch transport
// failure keeps the session on this step; resubmitting mints a new request id.
// Only one submission may be in flight; a concurrent call returns
// ErrSubmitInProgress without sending anything.
func (s *Session) SubmitGoals(ctx context.Context, in model.GoalsVision) (*Review, error) {
	snapshot, err := s.beginSubmit(in)
	if err != nil {
		return nil, err
	}

	receipt, err := s.dispatcher.Dispatch(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return nil, err
	}

	if err := s.ctrl.advanceFrom(StepGoals, map[string]any{model.FieldRequestID: receipt.RequestID}); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "entering summary review", "requestId", receipt.RequestID)

	s.review = startReview(context.WithoutCancel(ctx), s.ctrl, s.poller)
	return s.review, nil
}

// beginSubmit gates the goals step, merges it and marks a submission in
// flight. It returns the snapshot to dispatch.
func (s *Session) beginSubmit(in model.GoalsVision) (model.FormRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep(StepGoals); err != nil {
		return nil, err
	}
	if s.submitting {
		return nil, ErrSubmitInProgress
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	fields, err := model.Fields(in)
	if err != nil {
		return nil, err
	}
	s.ctrl.UpdateFormData(fields)
	s.submitting = true
	return s.ctrl.Record(), nil
}

// Review returns the active review, or nil outside the review step.
func (s *Session) Review() *Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review
}

// Back returns to the previous step. Leaving the review abandons its poll.
// It stays put while the goals are being sent.
func (s *Session) Back() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return s.ctrl.Current()
	}
	if s.ctrl.Current() == StepReview {
		s.closeReview()
	}
	return s.ctrl.Previous()
}

// Approve acknowledges the summary and completes the flow.
func (s *Session) Approve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review == nil {
		return fmt.Errorf("approve: %w", ErrNotOnStep)
	}
	if err := s.review.Approve(); err != nil {
		return err
	}
	return s.ctrl.Complete()
}

// RequestChanges annotates the summary with the client's note and stays on the review step.
func (s *Session) RequestChanges(note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review == nil {
		return fmt.Errorf("request changes: %w", ErrNotOnStep)
	}
	return s.review.RequestChanges(note)
}

// Finish completes the flow without an explicit approval. It is only allowed
// after the poll timed out and the fallback message is showing; a delivered
// or locally generated summary must be approved instead.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review == nil {
		return fmt.Errorf("finish: %w", ErrNotOnStep)
	}
	if !s.review.Proceedable() {
		return fmt.Errorf("finish with %s review: %w", s.review.Status(), ErrReviewPending)
	}
	s.review.close()
	return s.ctrl.Complete()
}

// StartNew clears everything and returns to the first step.
func (s *Session) StartNew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeReview()
	s.ctrl.Reset()
}

// Close abandons any running poll.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeReview()
}

func (s *Session) closeReview() {
	if s.review != nil {
		s.review.close()
		s.review = nil
	}
}

func (s *Session) submit(step Step, data any) error {
	if err := s.requireStep(step); err != nil {
		return err
	}
	if err := s.validator.Struct(data); err != nil {
		return err
	}
	fields, err := model.Fields(data)
	if err != nil {
		return err
	}
	return s.ctrl.advanceFrom(step, fields)
}

func (s *Session) requireStep(step Step) error {
	if current := s.ctrl.Current(); current != step {
		return fmt.Errorf("on %s, not %s: %w", current, step, ErrNotOnStep)
	}
	return nil
}
