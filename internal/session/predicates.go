package session

import (
	"time"

	"github.com/programme-lv/assessor/internal/domain"
)

// Latest attempt of an ordered attempt list, nil when empty.
func latest(attempts []*domain.Attempt) *domain.Attempt {
	if len(attempts) == 0 {
		return nil
	}
	return attempts[len(attempts)-1]
}

// checkStart returns the reason a new attempt may not begin, or nil.
func checkStart(t *domain.Test, attempts []*domain.Attempt, now time.Time) error {
	if now.Before(t.StartDate) {
		return domain.ErrTestNotStarted
	}
	if !now.Before(t.EndDate) {
		return domain.ErrTestWindowClosed
	}
	if l := latest(attempts); l != nil && l.Status == domain.StatusInProgress {
		return domain.ErrActiveAttemptExists
	}
	if len(attempts) > 0 && len(attempts) >= t.AttemptLimit() {
		return domain.ErrAttemptLimitReached
	}
	return nil
}

// CanStart reports whether the user may begin a new attempt now.
func CanStart(t *domain.Test, attempts []*domain.Attempt, now time.Time) bool {
	return checkStart(t, attempts, now) == nil
}

// CanEnd reports whether a may be submitted or ended. A hand-in past the
// deadline is accepted as late until the attempt is expired.
func CanEnd(a *domain.Attempt) bool {
	return a != nil && a.Status == domain.StatusInProgress
}

// IsExpired reports whether a has expired or would be expired by the next
// sweep, that is whether its deadline has passed.
func IsExpired(t *domain.Test, a *domain.Attempt, now time.Time) bool {
	if a == nil {
		return false
	}
	switch a.Status {
	case domain.StatusExpired:
		return true
	case domain.StatusInProgress:
		return now.After(t.Deadline(a.StartedAt))
	}
	return false
}

// IsLate reports whether a hand-in of a at the given time misses the
// attempt deadline. The deadline never falls after the test end date.
func IsLate(t *domain.Test, a *domain.Attempt, at time.Time) bool {
	return at.After(t.Deadline(a.StartedAt))
}

// TimeSpentMinutes is the whole minutes between from and to, never negative.
func TimeSpentMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
