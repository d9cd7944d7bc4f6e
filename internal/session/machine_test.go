package session_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var (
	windowStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
)

func newTest() *domain.Test {
	return &domain.Test{
		ID:              "t1",
		StartDate:       windowStart,
		EndDate:         windowEnd,
		DurationMinutes: 60,
		Questions: []domain.Question{
			{ProblemID: "sum", Marks: 10},
			{ProblemID: "max", Marks: 20},
		},
	}
}

func newMachine(c *clock) *session.Machine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.NewMachine(session.NewMemoryStore(), logger, session.WithClock(c.Now))
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(10 * time.Minute)}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.AttemptNumber)
	assert.Equal(t, domain.StatusInProgress, a.Status)
	assert.Equal(t, c.Now(), a.StartedAt)
}

func TestStart_TwiceWithoutMultipleAttempts(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(time.Minute)}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)

	_, err = m.Start(ctx, test, "u1")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, domain.ErrActiveAttemptExists)

	_, _, err = m.Submit(ctx, test, a.ID, nil)
	require.NoError(t, err)

	_, err = m.Start(ctx, test, "u1")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, domain.ErrAttemptLimitReached)
}

func TestStart_MultipleAttemptsNumberedInOrder(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(time.Minute)}
	m := newMachine(c)
	test := newTest()
	test.AllowMultipleAttempts = true
	test.MaxAttempts = 2

	for want := 1; want <= 2; want++ {
		a, err := m.Start(ctx, test, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, a.AttemptNumber)
		_, _, err = m.End(ctx, test, a.ID)
		require.NoError(t, err)
	}

	_, err := m.Start(ctx, test, "u1")
	assert.ErrorIs(t, err, domain.ErrAttemptLimitReached)
}

func TestStart_FirstAttemptWithoutAttemptCap(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(time.Minute)}
	m := newMachine(c)
	test := newTest()
	test.AllowMultipleAttempts = true
	test.MaxAttempts = 0

	assert.True(t, session.CanStart(test, nil, c.Now()))
	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.AttemptNumber)

	_, _, err = m.End(ctx, test, a.ID)
	require.NoError(t, err)
	_, err = m.Start(ctx, test, "u1")
	assert.ErrorIs(t, err, domain.ErrAttemptLimitReached)
}

// racedStore loses every attempt number claim, as a store does when
// another instance started the same attempt first.
type racedStore struct {
	*session.MemoryStore
}

func (racedStore) CreateAttempt(context.Context, *domain.Attempt) error {
	return fmt.Errorf("claim attempt number: %w", domain.ErrDuplicateAttempt)
}

func TestStart_LostNumberClaimIsTransitionError(t *testing.T) {
	c := &clock{t: windowStart.Add(time.Minute)}
	m := session.NewMachine(racedStore{session.NewMemoryStore()},
		slog.New(slog.NewTextHandler(io.Discard, nil)), session.WithClock(c.Now))

	_, err := m.Start(context.Background(), newTest(), "u1")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, domain.ErrDuplicateAttempt)
}

func TestStart_OutsideWindow(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(-time.Second)}
	m := newMachine(c)
	test := newTest()

	_, err := m.Start(ctx, test, "u1")
	assert.ErrorIs(t, err, domain.ErrTestNotStarted)

	c.Set(windowEnd)
	_, err = m.Start(ctx, test, "u1")
	assert.ErrorIs(t, err, domain.ErrTestWindowClosed)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestStart_ConcurrentStartsYieldOneAttempt(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart.Add(time.Minute)}
	m := newMachine(c)
	test := newTest()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Start(ctx, test, "u1")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	attempts, err := m.Store().ListAttempts(ctx, test.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestSubmit_LateFlagAroundEndDate(t *testing.T) {
	tests := []struct {
		name   string
		submit time.Time
		late   bool
	}{
		{"one second before end", windowEnd.Add(-time.Second), false},
		{"exactly at end", windowEnd, false},
		{"one second after end", windowEnd.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: windowEnd.Add(-30 * time.Minute)}
			m := newMachine(c)
			test := newTest()

			a, err := m.Start(ctx, test, "u1")
			require.NoError(t, err)

			c.Set(tt.submit)
			done, res, err := m.Submit(ctx, test, a.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.late, done.IsLateSubmission)
			assert.Equal(t, tt.late, res.IsLateSubmission)
			assert.Equal(t, domain.StatusSubmitted, done.Status)
		})
	}
}

func TestSubmit_ScoresLatestAnswers(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)

	_, err = m.SubmitQuestion(ctx, test, a.ID, domain.QuestionResult{ProblemID: "sum", Score: 2, MaxScore: 10})
	require.NoError(t, err)
	_, err = m.SubmitQuestion(ctx, test, a.ID, domain.QuestionResult{ProblemID: "sum", Score: 10, MaxScore: 10, IsCorrect: true})
	require.NoError(t, err)

	_, err = m.SubmitQuestion(ctx, test, a.ID, domain.QuestionResult{ProblemID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	c.Set(windowStart.Add(25*time.Minute + 30*time.Second))
	done, res, err := m.Submit(ctx, test, a.ID, []domain.QuestionResult{
		{ProblemID: "max", Score: 5, MaxScore: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 15, res.TotalScore)
	assert.Equal(t, 30, res.MaxScore)
	assert.InDelta(t, 50.0, res.Percentage, 1e-9)
	assert.Equal(t, 15, done.TotalScore)
	assert.Equal(t, 25, done.TimeSpentMinutes)
	require.NotNil(t, done.CompletedAt)

	_, _, err = m.Submit(ctx, test, a.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, domain.ErrAttemptTerminal)
}

func TestEnd_Completes(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	done, res, err := m.End(ctx, test, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 0, res.TotalScore)
	assert.Equal(t, 30, res.MaxScore)
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)

	_, _, err = m.Expire(ctx, test, a.ID)
	assert.ErrorIs(t, err, domain.ErrDeadlineAhead)

	c.Set(windowEnd.Add(time.Second))
	got, changed, err := m.Expire(ctx, test, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusExpired, got.Status)

	again, changed, err := m.Expire(ctx, test, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, got, again)

	_, _, err = m.Submit(ctx, test, a.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestExpire_AtAttemptDeadline(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	deadline := windowStart.Add(time.Hour)
	require.True(t, deadline.Before(test.EndDate))

	c.Set(deadline)
	expired, err := m.ExpireDue(ctx, func(context.Context, string) (*domain.Test, error) { return test, nil })
	require.NoError(t, err)
	assert.Empty(t, expired)
	v, err := m.Status(ctx, test, "u1")
	require.NoError(t, err)
	assert.False(t, v.IsExpired)

	c.Set(deadline.Add(time.Second))
	v, err = m.Status(ctx, test, "u1")
	require.NoError(t, err)
	assert.True(t, v.IsExpired)

	c.Set(windowStart.Add(150 * time.Minute))
	expired, err = m.ExpireDue(ctx, func(context.Context, string) (*domain.Test, error) { return test, nil })
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, a.ID, expired[0].ID)
	assert.Equal(t, domain.StatusExpired, expired[0].Status)

	_, _, err = m.Submit(ctx, test, a.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestSubmit_PastAttemptDeadlineIsLate(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)

	c.Set(windowStart.Add(61 * time.Minute))
	done, res, err := m.Submit(ctx, test, a.ID, nil)
	require.NoError(t, err)
	assert.True(t, done.IsLateSubmission)
	assert.True(t, res.IsLateSubmission)

	again, err := m.Result(ctx, test, done)
	require.NoError(t, err)
	assert.True(t, again.IsLateSubmission)
}

func TestExpireDue(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	_, err = m.Start(ctx, test, "u2")
	require.NoError(t, err)
	other := &domain.Test{ID: "other", StartDate: windowStart, EndDate: windowEnd.Add(time.Hour), DurationMinutes: 600}
	_, err = m.Start(ctx, other, "u1")
	require.NoError(t, err)

	lookup := func(_ context.Context, id string) (*domain.Test, error) {
		if id == test.ID {
			return test, nil
		}
		return other, nil
	}

	expired, err := m.ExpireDue(ctx, lookup)
	require.NoError(t, err)
	assert.Empty(t, expired)

	c.Set(windowEnd.Add(time.Minute))
	expired, err = m.ExpireDue(ctx, lookup)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	got, err := m.Store().GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
}

func TestBreachRule(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()
	test.ApplyBreachRule = true
	test.BreachRuleLimit = 3

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		got, err := m.RecordViolation(ctx, test, a.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.ViolationCount)
		assert.Equal(t, domain.StatusInProgress, got.Status)
	}

	got, err := m.RecordViolation(ctx, test, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)
	assert.Equal(t, session.BreachReason, got.AbandonReason)

	_, err = m.RecordViolation(ctx, test, a.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestBreachRule_Disabled(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()
	test.BreachRuleLimit = 1

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	got, err := m.RecordViolation(ctx, test, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	a, err := m.Start(ctx, test, "u1")
	require.NoError(t, err)
	got, err := m.Abandon(ctx, test, a.ID, "closed the tab")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)

	_, err = m.Abandon(ctx, test, a.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	m := newMachine(c)
	test := newTest()

	v, err := m.Status(ctx, test, "u1")
	require.NoError(t, err)
	assert.True(t, v.CanStart)
	assert.False(t, v.CanEnd)
	assert.False(t, v.IsExpired)
	assert.Equal(t, domain.AssignmentAssigned, v.Assignment.Status)

	_, err = m.Start(ctx, test, "u1")
	require.NoError(t, err)
	c.Set(windowStart.Add(20 * time.Minute))

	v, err = m.Status(ctx, test, "u1")
	require.NoError(t, err)
	assert.False(t, v.CanStart)
	assert.True(t, v.CanEnd)
	assert.Equal(t, 20, v.TimeSpentMinutes)
	require.NotNil(t, v.Deadline)
	assert.Equal(t, windowStart.Add(time.Hour), *v.Deadline)
	assert.Equal(t, 40*time.Minute, v.Remaining)
	assert.Equal(t, domain.AssignmentInProgress, v.Assignment.Status)

	c.Set(windowEnd.Add(time.Second))
	v, err = m.Status(ctx, test, "u1")
	require.NoError(t, err)
	assert.True(t, v.IsExpired)
}

func TestPredicatesArePure(t *testing.T) {
	test := newTest()
	a := &domain.Attempt{Status: domain.StatusInProgress, StartedAt: windowEnd.Add(-30 * time.Minute)}

	assert.True(t, session.CanEnd(a))
	assert.False(t, session.CanEnd(nil))
	assert.False(t, session.IsExpired(test, a, windowEnd))
	assert.True(t, session.IsExpired(test, a, windowEnd.Add(time.Nanosecond)))
	assert.Equal(t, domain.StatusInProgress, a.Status)

	assert.True(t, session.CanStart(test, nil, windowStart))
	assert.False(t, session.CanStart(test, []*domain.Attempt{a}, windowStart))
	assert.Equal(t, 0, session.TimeSpentMinutes(windowEnd, windowStart))
}
