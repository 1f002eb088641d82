package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidState        = errors.New("invalid request state")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrActiveRequestExists = errors.New("appointment already has an active request")
	ErrForbidden           = errors.New("role may not perform this transition")
	ErrVersionRequired     = errors.New("version is required")
	ErrVersionConflict     = errors.New("version conflict")
	ErrBookingDisabled     = errors.New("public booking is not available")
)

// ConflictError reports an update carrying a stale version.
type ConflictError struct {
	RequestID int64
	Expected  int
	Current   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %d: expected version %d, current version %d", e.RequestID, e.Expected, e.Current)
}

// Is lets errors.Is(err, ErrVersionConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// TransitionError reports a state change the state machine forbids.
type TransitionError struct {
	From RequestState
	To   RequestState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
