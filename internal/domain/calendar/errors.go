package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded means one of the two lists has not been fetched yet. It is
	// never the same as an empty day.
	ErrNotLoaded     = errors.New("calendar data not loaded")
	ErrSlotNotFound  = errors.New("slot not found")
	ErrUnknownAction = errors.New("unknown action")
)

// MissingReferenceError is returned when an action targets a slot that has no
// request behind it. No backend call is made.
type MissingReferenceError struct {
	AppointmentID int64
	Action        Action
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("cannot %s appointment %d: slot has no request", e.Action, e.AppointmentID)
}

// DataShapeAnomaly describes backend data outside the expected shape. It is
// logged, never returned to callers.
type DataShapeAnomaly struct {
	AppointmentID int64
	RequestID     int64
	Detail        string
}

func (e *DataShapeAnomaly) Error() string {
	return fmt.Sprintf("data shape anomaly on appointment %d (request %d): %s", e.AppointmentID, e.RequestID, e.Detail)
}
