package wizard

import (
	"context"
	"errors"
	"html"
	"slices"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/form/model"
	"github.com/squadhq/intake/internal/form/validation"
	"github.com/squadhq/intake/internal/poller"
)

const (
	fieldClientNote    = "clientNote"
	changeNoteRequired = "Please enter a note describing the requested changes."
)

var ErrReviewApproved = errors.New("summary review has already been approved")

// ReviewStatus is the state of the summary review step.
type ReviewStatus int

const (
	ReviewLoading ReviewStatus = iota
	ReviewReady
	ReviewTimedOut
	ReviewNoResult
	ReviewApproved
)

func (s ReviewStatus) String() string {
	switch s {
	case ReviewLoading:
		return "loading"
	case ReviewReady:
		return "ready"
	case ReviewTimedOut:
		return "timed_out"
	case ReviewNoResult:
		return "no_result"
	case ReviewApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// Review tracks the summary shown on the review step and the poll feeding it.
// Once a poll result has been applied or the review is approved or closed,
// later poll outcomes are dropped.
type Review struct {
	ctrl   *Controller
	policy *bluemonday.Policy

	mu       sync.Mutex
	status   ReviewStatus
	summary  string
	analysis *correlation.Record
	relevant bool
	handle   *poller.Handle

	resolved     chan struct{}
	resolvedOnce sync.Once
}

func startReview(ctx context.Context, ctrl *Controller, p *poller.Poller) *Review {
	rec := ctrl.Record()
	r := &Review{
		ctrl:     ctrl,
		policy:   bluemonday.StrictPolicy(),
		status:   ReviewLoading,
		summary:  rec.String(model.FieldGeneratedSummary),
		relevant: true,
		resolved: make(chan struct{}),
	}

	if rec.RequestID() == "" || p == nil {
		r.status = ReviewNoResult
		r.relevant = false
		if r.summary == "" {
			r.summary = GenerateSummary(rec)
		}
		r.markResolved()
		return r
	}

	r.mu.Lock()
	r.handle = p.Start(ctx, rec.RequestID(), r.apply)
	r.mu.Unlock()
	return r
}

func (r *Review) apply(res poller.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.relevant {
		return
	}
	r.relevant = false

	switch res.Outcome {
	case poller.OutcomeReady:
		r.status = ReviewReady
		r.analysis = res.Record
		r.summary = res.Summary
	case poller.OutcomeTimedOut:
		r.status = ReviewTimedOut
		r.summary = res.Summary
	default:
		r.status = ReviewNoResult
		if r.summary == "" {
			r.summary = GenerateSummary(r.ctrl.Record())
		}
	}
	r.ctrl.UpdateFormData(map[string]any{model.FieldGeneratedSummary: r.summary})
	r.markResolved()
}

func (r *Review) markResolved() {
	r.resolvedOnce.Do(func() { close(r.resolved) })
}

// Status returns the current review status.
func (r *Review) Status() ReviewStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Summary returns the summary currently shown.
func (r *Review) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Analysis returns the delivered analysis record, or nil.
func (r *Review) Analysis() *correlation.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.analysis
}

// Proceedable reports whether the flow may move on to completion: the summary
// was approved or the poll gave up waiting.
func (r *Review) Proceedable() bool {
	switch r.Status() {
	case ReviewApproved, ReviewTimedOut:
		return true
	default:
		return false
	}
}

// Wait blocks until the poll has resolved or ctx is done.
func (r *Review) Wait(ctx context.Context) (ReviewStatus, error) {
	select {
	case <-r.resolved:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}

// Approve acknowledges the summary. It is rejected while the analysis is still loading.
func (r *Review) Approve() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case ReviewLoading:
		return ErrReviewPending
	case ReviewApproved:
		return nil
	}
	r.status = ReviewApproved
	r.relevant = false
	if r.handle != nil {
		r.handle.Cancel()
	}
	return nil
}

// RequestChanges prefixes the summary with the client's note and records the
// note on the form. The pipeline is not contacted again.
func (r *Review) RequestChanges(note string) error {
	note = strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(note)))
	if note == "" {
		return validation.Errors{fieldClientNote: changeNoteRequired}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case ReviewLoading:
		return ErrReviewPending
	case ReviewApproved:
		return ErrReviewApproved
	}

	rec := r.ctrl.Record()
	base := r.summary
	if base == "" {
		base = GenerateSummary(rec)
	}
	r.summary = `Updated Summary based on client note: "` + note + "\"\n\n" + base

	var notes []string
	if existing, ok := rec[model.FieldChangesRequested].([]string); ok {
		notes = slices.Clone(existing)
	}
	r.ctrl.UpdateFormData(map[string]any{
		model.FieldChangesRequested: append(notes, note),
		model.FieldGeneratedSummary: r.summary,
	})
	return nil
}

// close abandons the poll; nothing it produces afterwards is applied.
func (r *Review) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relevant = false
	if r.handle != nil {
		r.handle.Cancel()
	}
	r.markResolved()
}
