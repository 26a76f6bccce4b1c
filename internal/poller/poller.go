package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/squadhq/intake/internal/correlation"
)

// DefaultFallbackMessage is shown when no analysis arrives before the deadline.
const DefaultFallbackMessage = "AI analysis is taking longer than expected. Our team will review your submission and get back to you shortly."

// Fetcher reads a correlation record. It returns correlation.ErrNotFound while
// the pipeline has not delivered.
type Fetcher interface {
	Get(ctx context.Context, requestID string) (*correlation.Record, error)
}

// Policy bounds a poll.
type Policy struct {
	InitialDelay    time.Duration
	Interval        time.Duration
	Deadline        time.Duration
	FallbackMessage string
	// SummaryField names the analysis field holding the client-facing summary.
	// When empty any ready record is accepted and summarised as JSON.
	SummaryField string
}

// DefaultPolicy waits 2s, then checks every 3s for up to 2 minutes.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:    2 * time.Second,
		Interval:        3 * time.Second,
		Deadline:        2 * time.Minute,
		FallbackMessage: DefaultFallbackMessage,
		SummaryField:    "clientDraft",
	}
}

// Outcome tells how a poll resolved.
type Outcome int

const (
	// OutcomeReady means the pipeline delivered a usable result.
	OutcomeReady Outcome = iota
	// OutcomeTimedOut means the deadline passed and the fallback was synthesised.
	OutcomeTimedOut
	// OutcomeSkipped means there was no request id to poll for.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is what a poll resolves to.
type Result struct {
	Outcome  Outcome
	Summary  string
	Record   *correlation.Record
	Attempts int
}

// Poller repeatedly fetches a correlation record until it is usable or the
// policy deadline passes.
type Poller struct {
	fetcher Fetcher
	policy  Policy
}

// New creates a Poller. Zero policy fields fall back to DefaultPolicy values.
func New(fetcher Fetcher, policy Policy) *Poller {
	def := DefaultPolicy()
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	if policy.Deadline <= 0 {
		policy.Deadline = def.Deadline
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.FallbackMessage == "" {
		policy.FallbackMessage = def.FallbackMessage
	}
	return &Poller{fetcher: fetcher, policy: policy}
}

// Policy returns the effective policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// Poll blocks until a usable record arrives, the deadline passes, or ctx is
// cancelled. Only cancellation of ctx produces an error. Attempts never
// overlap.
func (p *Poller) Poll(ctx context.Context, requestID string) (Result, error) {
	if requestID == "" {
		return Result{Outcome: OutcomeSkipped}, nil
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, p.policy.Deadline)
	defer cancel()

	timer := time.NewTimer(p.policy.InitialDelay)
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-deadlineCtx.Done():
			return p.expire(ctx, requestID, attempts)
		case <-timer.C:
		}

		attempts++
		rec, err := p.fetcher.Get(deadlineCtx, requestID)
		switch {
		case err == nil:
			if summary, ok := p.usable(rec); ok {
				slog.InfoContext(ctx, "analysis result received", "requestId", requestID, "attempts", attempts)
				return Result{Outcome: OutcomeReady, Summary: summary, Record: rec, Attempts: attempts}, nil
			}
			slog.DebugContext(ctx, "analysis result not usable yet", "requestId", requestID, "attempt", attempts)
		case errors.Is(err, correlation.ErrNotFound):
			slog.DebugContext(ctx, "analysis result not ready", "requestId", requestID, "attempt", attempts)
		default:
			if deadlineCtx.Err() != nil {
				return p.expire(ctx, requestID, attempts)
			}
			slog.WarnContext(ctx, "analysis poll failed", "requestId", requestID, "attempt", attempts, "error", err)
		}

		timer.Reset(p.policy.Interval)
	}
}

func (p *Poller) expire(ctx context.Context, requestID string, attempts int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Attempts: attempts}, err
	}
	slog.WarnContext(ctx, "analysis poll timed out", "requestId", requestID, "attempts", attempts, "deadline", p.policy.Deadline)
	return Result{Outcome: OutcomeTimedOut, Summary: p.policy.FallbackMessage, Attempts: attempts}, nil
}

func (p *Poller) usable(rec *correlation.Record) (string, bool) {
	if rec == nil || !rec.Ready {
		return "", false
	}
	if p.policy.SummaryField == "" {
		raw, err := json.MarshalIndent(rec.AnalysisData, "", "  ")
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
	summary := rec.Field(p.policy.SummaryField)
	if strings.TrimSpace(summary) == "" {
		return "", false
	}
	return summary, true
}

// Handle is a poll running in the background.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result Result
	err    error
}

// Start runs Poll in a goroutine. onDone, if set, is called with the outcome
// unless the poll was cancelled.
func (p *Poller) Start(ctx context.Context, requestID string, onDone func(Result)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		res, err := p.Poll(ctx, requestID)

		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()

		if err == nil && onDone != nil {
			onDone(res)
		}
	}()
	return h
}

// Cancel stops the poll. Pending waits are abandoned and onDone is not called.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the poll goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the poll finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}
