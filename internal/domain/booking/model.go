package booking

import (
	"time"
)

// RequestState is the lifecycle tag of a patient request.
type RequestState string

const (
	StatePending   RequestState = "pending"
	StateApproved  RequestState = "approved"
	StateDeclined  RequestState = "declined"
	StateCancelled RequestState = "cancelled"
	StateCompleted RequestState = "completed"
)

// AllStates lists the closed set of request states.
var AllStates = []RequestState{StatePending, StateApproved, StateDeclined, StateCancelled, StateCompleted}

var transitions = map[RequestState][]RequestState{
	StatePending:  {StateApproved, StateDeclined},
	StateApproved: {StateCompleted, StateCancelled},
}

// Valid reports whether s is one of the known states.
func (s RequestState) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// Active reports whether a request in state s holds its appointment.
func (s RequestState) Active() bool {
	return s == StatePending || s == StateApproved
}

// Terminal reports whether no transition leaves s.
func (s RequestState) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether s may move to next.
func (s RequestState) CanTransition(next RequestState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table. Staff create it; it is never
// edited afterwards.
type Appointment struct {
	ID                    int64     `db:"id" json:"id"`
	DoctorID              int64     `db:"doctor_id" json:"doctor_id"`
	EventType             string    `db:"event_type" json:"event_type"`
	DateFrom              time.Time `db:"date_from" json:"date_from"`
	DateTo                time.Time `db:"date_to" json:"date_to"`
	RegistrationMandatory bool      `db:"registration_mandatory" json:"registration_mandatory"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// Duration returns the length of the slot.
func (a *Appointment) Duration() time.Duration {
	return a.DateTo.Sub(a.DateFrom)
}

// Request maps to the request table: a patient's claim on an appointment.
type Request struct {
	ID            int64        `db:"id" json:"id"`
	State         RequestState `db:"state" json:"state"`
	Description   string       `db:"description" json:"description"`
	PatientID     int64        `db:"patient_id" json:"patient_id"`
	DoctorID      int64        `db:"doctor_id" json:"doctor_id"`
	NurseID       *int64       `db:"nurse_id" json:"nurse_id,omitempty"`
	AppointmentID int64        `db:"appointment_id" json:"appointment_id"`
	RequestTypeID *int64       `db:"request_type_id" json:"request_type_id,omitempty"`
	Version       int          `db:"version" json:"version"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// RequestType is a catalogue entry describing what a patient is asking for.
type RequestType struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`
	// Length is the expected visit length in minutes.
	Length int `db:"length" json:"length"`
}

// PatientDetails is what a visitor enters about themselves on the public
// booking form. PersonalNumber identifies the patient.
type PatientDetails struct {
	PersonalNumber string
	Name           string
	Surname        string
	PhoneNumber    string
}

// Booking is a public booking form submission.
type Booking struct {
	AppointmentID int64
	DoctorID      int64
	RequestTypeID int64
	Description   string
	Patient       PatientDetails
}

// AppointmentFilter narrows appointment listings. A zero Limit means no limit.
type AppointmentFilter struct {
	DoctorID *int64
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// RequestFilter narrows request listings. A zero Limit means no limit.
type RequestFilter struct {
	DoctorID      *int64
	PatientID     *int64
	AppointmentID *int64
	States        []RequestState
	Limit         int
	Offset        int
}
