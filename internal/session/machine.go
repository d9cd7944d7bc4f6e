// Package session drives the attempt lifecycle: start, hand-in, expiry and
// abandonment. Transitions for one (test, user) pair are serialized.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/scoring"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	EventStart     = "start"
	EventSubmit    = "submit"
	EventEnd       = "end"
	EventExpire    = "expire"
	EventAbandon   = "abandon"
	EventViolation = "record violation"
	EventAnswer    = "submit question"
)

// BreachReason is recorded on attempts abandoned by the breach rule.
const BreachReason = "breach rule limit reached"

type Machine struct {
	store  Store
	locks  *xsync.MapOf[string, *sync.Mutex]
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(store Store, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Store() Store { return m.store }

func (m *Machine) Now() time.Time { return m.now() }

// lock serializes transitions of one user on one test, across processes
// when the store is a Locker.
func (m *Machine) lock(ctx context.Context, testID, userID string) (func(), error) {
	mu, _ := m.locks.LoadOrCompute(userKey(testID, userID), func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	l, ok := m.store.(Locker)
	if !ok {
		return mu.Unlock, nil
	}
	unlock, err := l.Lock(ctx, testID, userID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	return func() {
		unlock()
		mu.Unlock()
	}, nil
}

// Start begins the user's next attempt. Attempt numbers are 1-based and
// increase by one per start.
func (m *Machine) Start(ctx context.Context, t *domain.Test, userID string) (*domain.Attempt, error) {
	unlock, err := m.lock(ctx, t.ID, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	attempts, err := m.store.ListAttempts(ctx, t.ID, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	from := domain.StatusAssigned
	if l := latest(attempts); l != nil {
		from = l.Status
	}
	if reason := checkStart(t, attempts, now); reason != nil {
		return nil, &domain.TransitionError{From: from, Event: EventStart, Reason: reason}
	}

	a := &domain.Attempt{
		ID:            uuid.NewString(),
		TestID:        t.ID,
		UserID:        userID,
		AttemptNumber: len(attempts) + 1,
		Status:        domain.StatusInProgress,
		StartedAt:     now,
	}
	if err := m.store.CreateAttempt(ctx, a); err != nil {
		if errors.Is(err, domain.ErrDuplicateAttempt) {
			return nil, &domain.TransitionError{From: from, Event: EventStart, Reason: err}
		}
		return nil, err
	}
	m.logger.Info("attempt started",
		"attempt_id", a.ID, "test_id", t.ID, "user_id", userID, "attempt_number", a.AttemptNumber)
	return a, nil
}

// withAttempt loads the attempt under its (test, user) lock and passes it
// to fn.
func (m *Machine) withAttempt(ctx context.Context, t *domain.Test, attemptID string, fn func(a *domain.Attempt) error) (*domain.Attempt, error) {
	a, err := m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.TestID != t.ID {
		return nil, fmt.Errorf("attempt %s does not belong to test %s: %w", attemptID, t.ID, domain.ErrNotFound)
	}
	unlock, err := m.lock(ctx, a.TestID, a.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err = m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return a, nil
}

func requireInProgress(a *domain.Attempt, event string) error {
	if a.Status == domain.StatusInProgress {
		return nil
	}
	reason := domain.ErrNotInProgress
	if a.Status.IsTerminal() {
		reason = domain.ErrAttemptTerminal
	}
	return &domain.TransitionError{AttemptID: a.ID, From: a.Status, Event: event, Reason: reason}
}

// SubmitQuestion stores a graded answer for one problem of an in-progress
// attempt. Later answers for the same problem replace earlier ones when
// the attempt is scored.
func (m *Machine) SubmitQuestion(ctx context.Context, t *domain.Test, attemptID string, qr domain.QuestionResult) (*domain.Attempt, error) {
	return m.withAttempt(ctx, t, attemptID, func(a *domain.Attempt) error {
		if err := requireInProgress(a, EventAnswer); err != nil {
			return err
		}
		if _, ok := t.Question(qr.ProblemID); !ok {
			return fmt.Errorf("problem %s is not part of test %s: %w", qr.ProblemID, t.ID, domain.ErrNotFound)
		}
		return m.store.AppendQuestionResult(ctx, a.ID, qr)
	})
}

// Submit hands in the attempt as Submitted. Final answers in qrs are
// stored before scoring.
func (m *Machine) Submit(ctx context.Context, t *domain.Test, attemptID string, qrs []domain.QuestionResult) (*domain.Attempt, domain.AttemptResult, error) {
	return m.finish(ctx, t, attemptID, EventSubmit, domain.StatusSubmitted, qrs)
}

// End closes the attempt as Completed, scoring the answers stored so far.
func (m *Machine) End(ctx context.Context, t *domain.Test, attemptID string) (*domain.Attempt, domain.AttemptResult, error) {
	return m.finish(ctx, t, attemptID, EventEnd, domain.StatusCompleted, nil)
}

func (m *Machine) finish(
	ctx context.Context,
	t *domain.Test,
	attemptID string,
	event string,
	to domain.AttemptStatus,
	qrs []domain.QuestionResult,
) (*domain.Attempt, domain.AttemptResult, error) {
	var res domain.AttemptResult
	a, err := m.withAttempt(ctx, t, attemptID, func(a *domain.Attempt) error {
		if err := requireInProgress(a, event); err != nil {
			return err
		}
		for _, qr := range qrs {
			if _, ok := t.Question(qr.ProblemID); !ok {
				return fmt.Errorf("problem %s is not part of test %s: %w", qr.ProblemID, t.ID, domain.ErrNotFound)
			}
		}
		for _, qr := range qrs {
			if err := m.store.AppendQuestionResult(ctx, a.ID, qr); err != nil {
				return err
			}
		}

		now := m.now()
		var err error
		res, err = m.score(ctx, t, a, now)
		if err != nil {
			return err
		}
		a.Status = to
		a.CompletedAt = &now
		a.TimeSpentMinutes = TimeSpentMinutes(a.StartedAt, now)
		a.IsLateSubmission = res.IsLateSubmission
		return m.store.UpdateAttempt(ctx, a)
	})
	if err != nil {
		return nil, domain.AttemptResult{}, err
	}
	m.logger.Info("attempt finished",
		"attempt_id", a.ID, "test_id", a.TestID, "user_id", a.UserID,
		"status", a.Status, "score", a.TotalScore, "late", a.IsLateSubmission)
	return a, res, nil
}

func (m *Machine) score(ctx context.Context, t *domain.Test, a *domain.Attempt, at time.Time) (domain.AttemptResult, error) {
	byProblem, err := m.store.LatestQuestionResults(ctx, a.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	res := scoring.AssembleAttempt(t, a.ID, byProblem, at)
	res.IsLateSubmission = res.IsLateSubmission || IsLate(t, a, at)
	a.TotalScore = res.TotalScore
	a.MaxScore = res.MaxScore
	a.Percentage = res.Percentage
	return res, nil
}

// Result recomputes the attempt result from stored answers.
func (m *Machine) Result(ctx context.Context, t *domain.Test, a *domain.Attempt) (domain.AttemptResult, error) {
	at := m.now()
	if a.CompletedAt != nil {
		at = *a.CompletedAt
	}
	byProblem, err := m.store.LatestQuestionResults(ctx, a.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	res := scoring.AssembleAttempt(t, a.ID, byProblem, at)
	res.IsLateSubmission = res.IsLateSubmission || IsLate(t, a, at)
	return res, nil
}

// Expire moves an in-progress attempt past its deadline to Expired.
// Expiring an expired attempt is a no-op; changed reports whether this
// call made the transition.
func (m *Machine) Expire(ctx context.Context, t *domain.Test, attemptID string) (a *domain.Attempt, changed bool, err error) {
	a, err = m.withAttempt(ctx, t, attemptID, func(a *domain.Attempt) error {
		if a.Status == domain.StatusExpired {
			return nil
		}
		if err := requireInProgress(a, EventExpire); err != nil {
			return err
		}
		now := m.now()
		if !IsExpired(t, a, now) {
			return &domain.TransitionError{AttemptID: a.ID, From: a.Status, Event: EventExpire, Reason: domain.ErrDeadlineAhead}
		}
		if _, err := m.score(ctx, t, a, now); err != nil {
			return err
		}
		a.Status = domain.StatusExpired
		a.TimeSpentMinutes = TimeSpentMinutes(a.StartedAt, now)
		changed = true
		return m.store.UpdateAttempt(ctx, a)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.logger.Info("attempt expired", "attempt_id", a.ID, "test_id", a.TestID, "user_id", a.UserID)
	}
	return a, changed, nil
}

// Abandon ends an in-progress attempt without a hand-in.
func (m *Machine) Abandon(ctx context.Context, t *domain.Test, attemptID, reason string) (*domain.Attempt, error) {
	a, err := m.withAttempt(ctx, t, attemptID, func(a *domain.Attempt) error {
		if err := requireInProgress(a, EventAbandon); err != nil {
			return err
		}
		return m.abandon(ctx, a, reason)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("attempt abandoned", "attempt_id", a.ID, "user_id", a.UserID, "reason", reason)
	return a, nil
}

func (m *Machine) abandon(ctx context.Context, a *domain.Attempt, reason string) error {
	now := m.now()
	a.Status = domain.StatusAbandoned
	a.AbandonReason = reason
	a.CompletedAt = &now
	a.TimeSpentMinutes = TimeSpentMinutes(a.StartedAt, now)
	return m.store.UpdateAttempt(ctx, a)
}

// RecordViolation counts one integrity violation. With the breach rule on,
// reaching the limit abandons the attempt.
func (m *Machine) RecordViolation(ctx context.Context, t *domain.Test, attemptID string) (*domain.Attempt, error) {
	return m.withAttempt(ctx, t, attemptID, func(a *domain.Attempt) error {
		if err := requireInProgress(a, EventViolation); err != nil {
			return err
		}
		a.ViolationCount++
		if t.ApplyBreachRule && a.ViolationCount >= t.BreachRuleLimit {
			m.logger.Warn("breach rule limit reached",
				"attempt_id", a.ID, "user_id", a.UserID, "violations", a.ViolationCount)
			return m.abandon(ctx, a, BreachReason)
		}
		return m.store.UpdateAttempt(ctx, a)
	})
}

// View is the caller's standing on one test at a point in time.
type View struct {
	Assignment       domain.Assignment
	Latest           *domain.Attempt
	AttemptsUsed     int
	CanStart         bool
	CanEnd           bool
	IsExpired        bool
	TimeSpentMinutes int
	Deadline         *time.Time
	Remaining        time.Duration
}

// Status evaluates the predicates for the user's latest attempt.
func (m *Machine) Status(ctx context.Context, t *domain.Test, userID string) (View, error) {
	attempts, err := m.store.ListAttempts(ctx, t.ID, userID)
	if err != nil {
		return View{}, err
	}
	now := m.now()
	l := latest(attempts)
	v := View{
		Assignment:   domain.DeriveAssignment(t, userID, l, now),
		Latest:       l,
		AttemptsUsed: len(attempts),
		CanStart:     CanStart(t, attempts, now),
		CanEnd:       CanEnd(l),
		IsExpired:    IsExpired(t, l, now),
	}
	if l == nil {
		return v, nil
	}
	if l.Status == domain.StatusInProgress {
		v.TimeSpentMinutes = TimeSpentMinutes(l.StartedAt, now)
		d := t.Deadline(l.StartedAt)
		v.Deadline = &d
		if rem := d.Sub(now); rem > 0 {
			v.Remaining = rem
		}
	} else {
		v.TimeSpentMinutes = l.TimeSpentMinutes
	}
	return v, nil
}

// ExpireDue expires every in-progress attempt whose deadline has passed. lookup resolves test IDs; attempts of unknown tests are skipped.
func (m *Machine) ExpireDue(ctx context.Context, lookup func(ctx context.Context, testID string) (*domain.Test, error)) ([]*domain.Attempt, error) {
	open, err := m.store.ListInProgress(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var expired []*domain.Attempt
	for _, a := range open {
		t, err := lookup(ctx, a.TestID)
		if err != nil {
			m.logger.Warn("skipping attempt of unknown test", "attempt_id", a.ID, "test_id", a.TestID, "error", err)
			continue
		}
		if !IsExpired(t, a, now) {
			continue
		}
		got, changed, err := m.Expire(ctx, t, a.ID)
		var te *domain.TransitionError
		if errors.As(err, &te) {
			continue
		}
		if err != nil {
			return expired, err
		}
		if changed {
			expired = append(expired, got)
		}
	}
	return expired, nil
}
