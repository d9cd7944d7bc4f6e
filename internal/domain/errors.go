package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTest            = errors.New("invalid test")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrAttemptLimitReached = errors.New("attempt limit reached")
	ErrActiveAttemptExists = errors.New("an attempt is already in progress")
	ErrTestWindowClosed    = errors.New("test window is closed")
	ErrTestNotStarted      = errors.New("test has not started yet")
	ErrAttemptTerminal     = errors.New("attempt is already finished")
	ErrDeadlineAhead       = errors.New("attempt deadline has not passed")
	ErrDuplicateAttempt    = errors.New("attempt number already taken")
	ErrNotInProgress       = errors.New("attempt is not in progress")
)

// TransitionError is returned when a lifecycle event is not allowed in the
// attempt's current state. It matches ErrInvalidStateTransition and the
// reason it carries.
type TransitionError struct {
	AttemptID string
	From      AttemptStatus
	Event     string
	Reason    error
}

func (e *TransitionError) Error() string {
	if e.AttemptID == "" {
		return fmt.Sprintf("cannot %s from %s: %v", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s attempt %s from %s: %v", e.Event, e.AttemptID, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() []error {
	return []error{ErrInvalidStateTransition, e.Reason}
}
