package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadhq/intake/internal/correlation"
)

// fakeFetcher serves records from a MemoryStore and counts calls.
type fakeFetcher struct {
	store    *correlation.MemoryStore
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	err      error
	delay    time.Duration
	onCall   func(n int32)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{store: correlation.NewMemoryStore()}
}

func (f *fakeFetcher) Get(ctx context.Context, requestID string) (*correlation.Record, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	n := f.calls.Add(1)
	if f.onCall != nil {
		f.onCall(n)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Get(ctx, requestID)
}

func fastPolicy() Policy {
	return Policy{
		InitialDelay:    5 * time.Millisecond,
		Interval:        10 * time.Millisecond,
		Deadline:        200 * time.Millisecond,
		FallbackMessage: DefaultFallbackMessage,
		SummaryField:    "clientDraft",
	}
}

func TestPoll_ResultArrivesAfterSomeMisses(t *testing.T) {
	f := newFakeFetcher()
	f.onCall = func(n int32) {
		if n == 3 {
			_, _ = f.store.Put(context.Background(), "r1", map[string]any{"clientDraft": "X"})
		}
	}

	res, err := New(f, fastPolicy()).Poll(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Equal(t, "X", res.Summary)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, f.overlap.Load())
}

func TestPoll_TimesOutWithFallback(t *testing.T) {
	f := newFakeFetcher()
	policy := fastPolicy()
	policy.Deadline = 60 * time.Millisecond

	start := time.Now()
	res, err := New(f, policy).Poll(context.Background(), "r1")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, DefaultFallbackMessage, res.Summary)
	assert.Nil(t, res.Record)
	assert.Less(t, elapsed, policy.Deadline+policy.Interval+50*time.Millisecond)
	assert.GreaterOrEqual(t, res.Attempts, 1)
}

func TestPoll_TransportErrorsAreRetried(t *testing.T) {
	f := newFakeFetcher()
	f.err = errors.New("connection refused")
	f.onCall = func(n int32) {
		if n == 2 {
			f.err = nil
			_, _ = f.store.Put(context.Background(), "r1", map[string]any{"clientDraft": "after retry"})
		}
	}

	res, err := New(f, fastPolicy()).Poll(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Equal(t, "after retry", res.Summary)
}

func TestPoll_ReadyRecordWithoutSummaryKeepsPolling(t *testing.T) {
	f := newFakeFetcher()
	_, _ = f.store.Put(context.Background(), "r1", map[string]any{"status": "working"})
	policy := fastPolicy()
	policy.Deadline = 50 * time.Millisecond

	res, err := New(f, policy).Poll(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Greater(t, res.Attempts, 1)
}

func TestPoll_AnyReadyRecordWhenNoSummaryField(t *testing.T) {
	f := newFakeFetcher()
	_, _ = f.store.Put(context.Background(), "r1", map[string]any{"score": 7})
	policy := fastPolicy()
	policy.SummaryField = ""

	res, err := New(f, policy).Poll(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.JSONEq(t, `{"score":7}`, res.Summary)
}

func TestPoll_NoRequestIDSkips(t *testing.T) {
	f := newFakeFetcher()
	res, err := New(f, fastPolicy()).Poll(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Zero(t, f.calls.Load())
}

func TestPoll_CancelledContext(t *testing.T) {
	f := newFakeFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := New(f, fastPolicy()).Poll(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoll_HangingFetchStillMeetsDeadline(t *testing.T) {
	f := newFakeFetcher()
	f.delay = time.Hour
	policy := fastPolicy()
	policy.Deadline = 40 * time.Millisecond

	start := time.Now()
	res, err := New(f, policy).Poll(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNew_FillsDefaults(t *testing.T) {
	p := New(newFakeFetcher(), Policy{InitialDelay: -1})
	got := p.Policy()
	assert.Equal(t, time.Duration(0), got.InitialDelay)
	assert.Equal(t, 3*time.Second, got.Interval)
	assert.Equal(t, 2*time.Minute, got.Deadline)
	assert.Equal(t, DefaultFallbackMessage, got.FallbackMessage)
}

func TestStart_CallsOnDone(t *testing.T) {
	f := newFakeFetcher()
	_, _ = f.store.Put(context.Background(), "r1", map[string]any{"clientDraft": "X"})

	var mu sync.Mutex
	var got Result
	h := New(f, fastPolicy()).Start(context.Background(), "r1", func(r Result) {
		mu.Lock()
		got = r
		mu.Unlock()
	})

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, res.Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "X", got.Summary)
}

func TestStart_CancelSuppressesOnDone(t *testing.T) {
	f := newFakeFetcher()
	var called atomic.Bool
	h := New(f, fastPolicy()).Start(context.Background(), "r1", func(Result) { called.Store(true) })

	h.Cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called.Load())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "ready", OutcomeReady.String())
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
