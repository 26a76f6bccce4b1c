package wizard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/dispatch"
	"github.com/squadhq/intake/internal/form/model"
	"github.com/squadhq/intake/internal/form/validation"
	"github.com/squadhq/intake/internal/poller"
)

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, record model.FormRecord) (*dispatch.Receipt, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.Receipt), args.Error(1)
}

func testPolicy(deadline time.Duration) poller.Policy {
	return poller.Policy{
		InitialDelay:    5 * time.Millisecond,
		Interval:        10 * time.Millisecond,
		Deadline:        deadline,
		FallbackMessage: poller.DefaultFallbackMessage,
		SummaryField:    "clientDraft",
	}
}

func basics() model.ProjectBasics {
	return model.ProjectBasics{
		CompanyName:    "Acme",
		Department:     "Finance",
		ProjectName:    "Invoice flow",
		RequesterName:  "Sam",
		RequesterEmail: "sam@acme.io",
	}
}

func goals() model.GoalsVision {
	g := model.NewGoalsVision()
	g.ToggleOutcome("reduce_time")
	g.SuccessMetrics = "Halve processing time"
	return g
}

// walkToGoals submits valid data for the first three steps.
func walkToGoals(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SubmitProjectBasics(basics()))
	require.NoError(t, s.SubmitProcessDiscovery(model.ProcessDiscovery{ProcessType: model.ProcessTypeFinanceAdmin}))

	var pain model.PainPointAnalysis
	pain.TogglePainPoint("time_consumption")
	pain.Frequency = "daily"
	pain.BusinessImpact = 70
	require.NoError(t, s.SubmitPainPoints(pain))
	require.Equal(t, StepGoals, s.Current())
}

func newSession(t *testing.T, store correlation.Store, deadline time.Duration, requestID string) (*Session, *MockDispatcher) {
	t.Helper()
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(&dispatch.Receipt{RequestID: requestID, SentAt: time.Now()}, nil)
	s := NewSession(d, poller.New(store, testPolicy(deadline)))
	t.Cleanup(s.Close)
	return s, d
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSession_InvalidEmailKeepsStep(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")

	in := basics()
	in.RequesterEmail = "not-an-email"
	err := s.SubmitProjectBasics(in)

	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Please enter a valid email address", fe["requesterEmail"])
	assert.Equal(t, StepProjectBasics, s.Current())
	assert.Empty(t, s.Controller().Record())
}

func TestSession_CustomProcessGate(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")
	require.NoError(t, s.SubmitProjectBasics(basics()))

	d := model.ProcessDiscovery{ProcessType: model.ProcessTypeCustom, OtherProcessName: "Vendor intake"}
	err := s.SubmitProcessDiscovery(d)
	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.True(t, fe.Has("customProcessDescription"))
	assert.Equal(t, StepProcessDiscovery, s.Current())

	_, err = d.AddStep(model.ProcessStep{Description: "Collect vendor forms"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SubmitProcessDiscovery(d))
	assert.Equal(t, StepPainPoints, s.Current())

	var loaded model.ProcessDiscovery
	require.NoError(t, s.Load(&loaded))
	require.Len(t, loaded.ProcessSteps, 1)
	assert.Equal(t, "Collect vendor forms", loaded.ProcessSteps[0].Description)
}

func TestSession_SubmitOnWrongStep(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")
	err := s.SubmitPainPoints(model.PainPointAnalysis{PainPointCategories: []string{"messy_files"}, Frequency: "daily"})
	assert.ErrorIs(t, err, ErrNotOnStep)
}

func TestSession_BackNeverRevalidates(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")
	walkToGoals(t, s)

	assert.Equal(t, StepPainPoints, s.Back())
	assert.Equal(t, StepProcessDiscovery, s.Back())
	assert.Equal(t, StepProjectBasics, s.Back())
	assert.Equal(t, StepProjectBasics, s.Back())

	// earlier answers survive navigation
	var b model.ProjectBasics
	require.NoError(t, s.Load(&b))
	assert.Equal(t, basics(), b)
}

func TestSession_HappyPath(t *testing.T) {
	store := correlation.NewMemoryStore()
	s, d := newSession(t, store, time.Second, "1700000000000-abc123xyz")
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	assert.Equal(t, StepReview, s.Current())
	assert.Equal(t, "1700000000000-abc123xyz", s.Controller().Record().RequestID())
	assert.ErrorIs(t, s.Approve(), ErrReviewPending)

	_, err = store.Put(context.Background(), "1700000000000-abc123xyz", map[string]any{"clientDraft": "Draft plan"})
	require.NoError(t, err)

	status, err := review.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, ReviewReady, status)
	assert.Equal(t, "Draft plan", review.Summary())
	assert.Equal(t, "Draft plan", review.Analysis().Field("clientDraft"))

	require.NoError(t, s.Approve())
	assert.Equal(t, StepCompleted, s.Current())
	assert.Equal(t, ReviewApproved, review.Status())

	// the dispatched snapshot carried every step's data
	d.AssertNumberOfCalls(t, "Dispatch", 1)
	sent := d.Calls[0].Arguments.Get(1).(model.FormRecord)
	assert.Equal(t, "Acme", sent.String("companyName"))
	assert.Equal(t, "daily", sent.String("frequency"))
	assert.Equal(t, "Halve processing time", sent.String("successMetrics"))

	s.StartNew()
	assert.Equal(t, StepProjectBasics, s.Current())
	assert.Empty(t, s.Controller().Record())
	assert.Nil(t, s.Review())
}

func TestSession_TimeoutFallback(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), 40*time.Millisecond, "r-timeout")
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)

	status, err := review.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, ReviewTimedOut, status)
	assert.Equal(t, poller.DefaultFallbackMessage, review.Summary())
	assert.True(t, review.Proceedable())

	require.NoError(t, s.Finish())
	assert.Equal(t, StepCompleted, s.Current())
}

func TestSession_FinishRequiresApprovalOnceResultArrives(t *testing.T) {
	store := correlation.NewMemoryStore()
	_, err := store.Put(context.Background(), "r-ready", map[string]any{"clientDraft": "hello"})
	require.NoError(t, err)
	s, _ := newSession(t, store, time.Second, "r-ready")
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Finish(), ErrReviewPending)

	status, err := review.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, ReviewReady, status)
	assert.False(t, review.Proceedable())

	assert.ErrorIs(t, s.Finish(), ErrReviewPending)
	assert.Equal(t, StepReview, s.Current())

	require.NoError(t, s.Approve())
	assert.True(t, review.Proceedable())
	assert.Equal(t, StepCompleted, s.Current())
}

func TestSession_FinishRejectedWithoutPoll(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(&dispatch.Receipt{RequestID: "r1"}, nil)
	s := NewSession(d, nil)
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	require.Equal(t, ReviewNoResult, review.Status())

	assert.ErrorIs(t, s.Finish(), ErrReviewPending)
	assert.Equal(t, StepReview, s.Current())
}

func TestSession_ConcurrentGoalsSubmitDispatchesOnce(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		After(50*time.Millisecond).
		Return(&dispatch.Receipt{RequestID: "r-once", SentAt: time.Now()}, nil)
	s := NewSession(d, poller.New(correlation.NewMemoryStore(), testPolicy(time.Second)))
	t.Cleanup(s.Close)
	walkToGoals(t, s)

	start := make(chan struct{})
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			<-start
			_, err := s.SubmitGoals(context.Background(), goals())
			errs <- err
		}()
	}
	close(start)

	var failures []error
	for range 2 {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}

	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], ErrSubmitInProgress) || errors.Is(failures[0], ErrNotOnStep), failures[0])
	d.AssertNumberOfCalls(t, "Dispatch", 1)
	assert.Equal(t, StepReview, s.Current())
	assert.Equal(t, "r-once", s.Controller().Record().RequestID())
}

// heldDispatcher blocks each dispatch until release is closed.
type heldDispatcher struct {
	entered chan struct{}
	release chan struct{}
}

func (h *heldDispatcher) Dispatch(ctx context.Context, _ model.FormRecord) (*dispatch.Receipt, error) {
	h.entered <- struct{}{}
	<-h.release
	return &dispatch.Receipt{RequestID: "r-hold", SentAt: time.Now()}, nil
}

func TestSession_BackIgnoredWhileSubmitting(t *testing.T) {
	d := &heldDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewSession(d, nil)
	walkToGoals(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitGoals(context.Background(), goals())
		done <- err
	}()
	<-d.entered

	assert.Equal(t, StepGoals, s.Back())
	_, err := s.SubmitGoals(context.Background(), goals())
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(d.release)
	require.NoError(t, <-done)
	assert.Equal(t, StepReview, s.Current())
	assert.Equal(t, "r-hold", s.Controller().Record().RequestID())
}

func TestSession_LeavingReviewAbandonsPoll(t *testing.T) {
	store := correlation.NewMemoryStore()
	s, _ := newSession(t, store, time.Second, "r-abandon")
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)

	assert.Equal(t, StepGoals, s.Back())
	assert.Nil(t, s.Review())

	_, err = store.Put(context.Background(), "r-abandon", map[string]any{"clientDraft": "late"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, ReviewLoading, review.Status())
	assert.NotEqual(t, "late", review.Summary())
	assert.NotContains(t, s.Controller().Record(), model.FieldGeneratedSummary)
}

func TestSession_DispatchFailureBlocksProgress(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(nil, &dispatch.TransportError{Endpoint: "http://pipeline", Err: errors.New("connection refused")}).Once()
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(&dispatch.Receipt{RequestID: "r-retry"}, nil).Once()

	s := NewSession(d, poller.New(correlation.NewMemoryStore(), testPolicy(time.Second)))
	t.Cleanup(s.Close)
	walkToGoals(t, s)

	_, err := s.SubmitGoals(context.Background(), goals())
	var terr *dispatch.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StepGoals, s.Current())
	assert.Empty(t, s.Controller().Record().RequestID())

	_, err = s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	assert.Equal(t, "r-retry", s.Controller().Record().RequestID())
	d.AssertExpectations(t)
}

func TestSession_GoalsGate(t *testing.T) {
	s, d := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")
	walkToGoals(t, s)

	_, err := s.SubmitGoals(context.Background(), model.NewGoalsVision())
	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.True(t, fe.Has("outcomePriorities"))
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSession_RequestChanges(t *testing.T) {
	store := correlation.NewMemoryStore()
	s, _ := newSession(t, store, time.Second, "r-changes")
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "r-changes", map[string]any{"clientDraft": "Draft plan"})
	require.NoError(t, err)
	_, err = review.Wait(waitCtx(t))
	require.NoError(t, err)

	err = s.RequestChanges("   ")
	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Please enter a note describing the requested changes.", fe["clientNote"])

	require.NoError(t, s.RequestChanges("Add <b>weekly</b> reporting & alerts"))
	want := "Updated Summary based on client note: \"Add weekly reporting & alerts\"\n\nDraft plan"
	assert.Equal(t, want, review.Summary())
	assert.Equal(t, StepReview, s.Current())

	rec := s.Controller().Record()
	assert.Equal(t, []string{"Add weekly reporting & alerts"}, rec[model.FieldChangesRequested])
	assert.Equal(t, want, rec.String(model.FieldGeneratedSummary))

	require.NoError(t, s.RequestChanges("Also track approvals"))
	assert.True(t, strings.HasPrefix(review.Summary(), "Updated Summary based on client note: \"Also track approvals\""))
	assert.Len(t, s.Controller().Record()[model.FieldChangesRequested], 2)

	require.NoError(t, s.Approve())
	assert.ErrorIs(t, review.RequestChanges("too late"), ErrReviewApproved)
}

func TestSession_NoPollerMeansNoResultExpected(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(&dispatch.Receipt{RequestID: "r1"}, nil)
	s := NewSession(d, nil)
	walkToGoals(t, s)

	review, err := s.SubmitGoals(context.Background(), goals())
	require.NoError(t, err)
	assert.Equal(t, ReviewNoResult, review.Status())
	assert.Contains(t, review.Summary(), `"company": "Acme"`)
	require.NoError(t, s.Approve())
}

func TestSession_ActionsOutsideReview(t *testing.T) {
	s, _ := newSession(t, correlation.NewMemoryStore(), time.Second, "r1")
	assert.ErrorIs(t, s.Approve(), ErrNotOnStep)
	assert.ErrorIs(t, s.RequestChanges("note"), ErrNotOnStep)
	assert.ErrorIs(t, s.Finish(), ErrNotOnStep)
}

func TestGenerateSummary(t *testing.T) {
	rec := model.FormRecord{
		"projectName":         "Invoices",
		"companyName":         "Acme",
		"processType":         "finance_admin",
		"painPointCategories": []string{"messy_files"},
		"processSteps": []model.ProcessStep{
			{ID: 1, Description: "Receive", AutomationVision: "Auto-capture"},
		},
	}
	out := GenerateSummary(rec)
	assert.JSONEq(t, `{
		"project": "Invoices",
		"company": "Acme",
		"processType": "finance_admin",
		"processSteps": [{"description": "Receive", "automationVision": "Auto-capture"}],
		"painPoints": ["messy_files"],
		"goals": [],
		"metrics": "",
		"technicalContext": {
			"existingTools": [],
			"dataSource": "",
			"outputDestination": "",
			"timeline": "",
			"budget": "",
			"technicalConstraints": "",
			"niceToHave": [],
			"securityRequirements": "",
			"scalabilityNeeds": ""
		}
	}`, out)
}
