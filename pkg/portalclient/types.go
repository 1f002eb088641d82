package portalclient

import (
	"encoding/json"
	"time"
)

// Appointment as returned by the API. Older API versions use different field
// names for the same data; UnmarshalJSON accepts both.
type Appointment struct {
	ID                    int64     `json:"id"`
	DoctorID              int64     `json:"doctor_id"`
	EventType             string    `json:"event_type"`
	DateFrom              time.Time `json:"date_from"`
	DateTo                time.Time `json:"date_to"`
	RegistrationMandatory bool      `json:"registration_mandatory"`
	CreatedAt             time.Time `json:"created_at"`
}

func (a *Appointment) UnmarshalJSON(b []byte) error {
	type plain Appointment
	var v struct {
		plain
		StartDateTime         *time.Time `json:"start_date_time"`
		EndDateTime           *time.Time `json:"end_date_time"`
		MandatoryRegistration *bool      `json:"mandatory_registration"`
	}
	// Missing flag means registration is required.
	v.RegistrationMandatory = true
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.DateFrom.IsZero() && v.StartDateTime != nil {
		v.DateFrom = *v.StartDateTime
	}
	if v.DateTo.IsZero() && v.EndDateTime != nil {
		v.DateTo = *v.EndDateTime
	}
	if v.MandatoryRegistration != nil && !hasKey(b, "registration_mandatory") {
		v.RegistrationMandatory = *v.MandatoryRegistration
	}
	*a = Appointment(v.plain)
	return nil
}

// Request as returned by the API, with the same legacy aliases.
type Request struct {
	ID            int64     `json:"id"`
	State         string    `json:"state"`
	Description   string    `json:"description"`
	PatientID     int64     `json:"patient_id"`
	DoctorID      int64     `json:"doctor_id"`
	NurseID       *int64    `json:"nurse_id"`
	AppointmentID int64     `json:"appointment_id"`
	RequestTypeID *int64    `json:"request_type_id"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	var v struct {
		plain
		Status string `json:"status"`
		Reason string `json:"reason"`
		TypeID *int64 `json:"type_id"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.State == "" {
		v.State = v.Status
	}
	if v.Description == "" {
		v.Description = v.Reason
	}
	if v.RequestTypeID == nil {
		v.RequestTypeID = v.TypeID
	}
	*r = Request(v.plain)
	return nil
}

func hasKey(b []byte, key string) bool {
	var m map[string]json.RawMessage
	if json.Unmarshal(b, &m) != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
