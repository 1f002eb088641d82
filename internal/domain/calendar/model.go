package calendar

import (
	"time"
)

// Status is the display state of a slot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Request states as they arrive from the backend. The set is closed; anything
// else is a data shape anomaly.
const (
	statePending   = "pending"
	stateApproved  = "approved"
	stateDeclined  = "declined"
	stateCancelled = "cancelled"
	stateCompleted = "completed"
)

// UnspecifiedReason is shown when neither the request nor the appointment
// carries a label.
const UnspecifiedReason = "unspecified"

// Appointment is the slice of an appointment the calendar reads.
type Appointment struct {
	ID                    int64     `json:"id"`
	DoctorID              int64     `json:"doctor_id"`
	EventType             string    `json:"event_type"`
	DateFrom              time.Time `json:"date_from"`
	DateTo                time.Time `json:"date_to"`
	RegistrationMandatory bool      `json:"registration_mandatory"`
}

// Request is the slice of a patient request the calendar reads. State is kept
// as the raw string so unknown values can be detected.
type Request struct {
	ID            int64  `json:"id"`
	AppointmentID int64  `json:"appointment_id"`
	State         string `json:"state"`
	Description   string `json:"description"`
	Version       int    `json:"version"`
}

// Slot is one appointment on the selected day joined with its relevant
// request. It is derived and never stored.
type Slot struct {
	AppointmentID int64     `json:"appointment_id"`
	DoctorID      int64     `json:"doctor_id"`
	Start         string    `json:"start"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Reason        string    `json:"reason"`
	Status        Status    `json:"status"`
	RequestID     *int64    `json:"request_id"`
	// RequestVersion is the version of RequestID when the slot was built.
	RequestVersion int `json:"request_version,omitempty"`
	// WalkIn marks appointments that do not need a request to be attended.
	WalkIn bool `json:"walk_in"`
}

// Action is a staff operation on a slot's request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
)

// TargetState is the request state the action asks for.
func (a Action) TargetState() string {
	switch a {
	case ActionApprove:
		return stateApproved
	case ActionDecline:
		return stateDeclined
	case ActionCancel:
		return stateCancelled
	}
	return ""
}

// AllowedActions lists what staff with role may do on slot. Nurses may only
// approve; doctors and admins may also decline and cancel.
func AllowedActions(slot Slot, role string) []Action {
	if slot.RequestID == nil {
		return nil
	}
	doctor := role == "doctor" || role == "admin"
	switch slot.Status {
	case StatusPending:
		if doctor {
			return []Action{ActionApprove, ActionDecline}
		}
		if role == "nurse" {
			return []Action{ActionApprove}
		}
	case StatusConfirmed:
		if doctor {
			return []Action{ActionCancel}
		}
	}
	return nil
}
