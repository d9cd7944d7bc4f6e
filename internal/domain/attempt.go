package domain

import "time"

type AttemptStatus string

const (
	StatusAssigned   AttemptStatus = "assigned"
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusExpired    AttemptStatus = "expired"
	StatusAbandoned  AttemptStatus = "abandoned"
)

// IsTerminal reports whether no further transitions are accepted.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSubmitted, StatusExpired, StatusAbandoned:
		return true
	}
	return false
}

// Attempt is one user's timed try at a test. Results and activity are kept
// in their own collections and reference the attempt by ID.
type Attempt struct {
	ID            string        `json:"id"`
	TestID        string        `json:"test_id"`
	UserID        string        `json:"user_id"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalScore       int     `json:"total_score"`
	MaxScore         int     `json:"max_score"`
	Percentage       float64 `json:"percentage"`
	TimeSpentMinutes int     `json:"time_spent_minutes"`
	IsLateSubmission bool    `json:"is_late_submission"`

	ViolationCount int    `json:"violation_count"`
	AbandonReason  string `json:"abandon_reason,omitempty"`
}

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentExpired    AssignmentStatus = "expired"
)

// Assignment maps a test to a user. Its status is derived, never stored.
type Assignment struct {
	TestID          string           `json:"test_id"`
	UserID          string           `json:"user_id"`
	Status          AssignmentStatus `json:"status"`
	ActiveAttemptID string           `json:"active_attempt_id,omitempty"`
}

// DeriveAssignment computes the assignment view from the user's latest
// attempt (nil when none was started) and the test window.
func DeriveAssignment(t *Test, userID string, latest *Attempt, now time.Time) Assignment {
	a := Assignment{TestID: t.ID, UserID: userID}
	switch {
	case latest == nil && now.After(t.EndDate):
		a.Status = AssignmentExpired
	case latest == nil:
		a.Status = AssignmentAssigned
	case latest.Status == StatusInProgress:
		a.Status = AssignmentInProgress
		a.ActiveAttemptID = latest.ID
	case latest.Status == StatusExpired:
		a.Status = AssignmentExpired
	default:
		a.Status = AssignmentCompleted
	}
	return a
}
