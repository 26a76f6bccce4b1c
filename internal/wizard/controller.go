package wizard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/squadhq/intake/internal/form/model"
)

var (
	// ErrNotOnStep is returned when an action belongs to a different step than the current one.
	ErrNotOnStep        = errors.New("action does not belong to the current step")
	// ErrReviewPending is returned when the review cannot be closed yet.
	ErrReviewPending    = errors.New("summary review is not ready to close")
	// ErrSubmitInProgress is returned while the goals step is being dispatched.
	ErrSubmitInProgress = errors.New("submission is already being sent")
)

// Controller owns the current step and the accumulated FormRecord. Steps read
// the record through snapshots and write it only through UpdateFormData.
type Controller struct {
	mu     sync.Mutex
	step   Step
	record model.FormRecord
}

// NewController starts at the first step with an empty record.
func NewController() *Controller {
	return &Controller{
		step:   StepProjectBasics,
		record: model.NewFormRecord(),
	}
}

// Current returns the current step.
func (c *Controller) Current() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Next advances one step. It is a no-op on the final data step and once completed.
// Callers run their own validity gate first.
func (c *Controller) Next() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step < StepReview {
		c.step++
	}
	return c.step
}

// Previous goes back one step without re-validating. No-op at the first step
// and once completed.
func (c *Controller) Previous() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step > StepProjectBasics && c.step != StepCompleted {
		c.step--
	}
	return c.step
}

// UpdateFormData shallow-merges partial into the record. It is never rejected.
func (c *Controller) UpdateFormData(partial map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.Merge(partial)
}

// Record returns a snapshot of the accumulated record.
func (c *Controller) Record() model.FormRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

// Complete moves from the review step to the terminal state.
func (c *Controller) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.step, StepCompleted) {
		return fmt.Errorf("cannot complete from %s: %w", c.step, ErrNotOnStep)
	}
	c.step = StepCompleted
	return nil
}

// Reset clears the record and returns to the first step.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = StepProjectBasics
	c.record = model.NewFormRecord()
}

// advanceFrom merges partial and moves to the next step in one critical
// section, provided the controller is still on from.
func (c *Controller) advanceFrom(from Step, partial map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != from {
		return fmt.Errorf("on %s, not %s: %w", c.step, from, ErrNotOnStep)
	}
	c.record.Merge(partial)
	c.step = from + 1
	return nil
}
