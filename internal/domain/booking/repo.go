package booking

import (
	"context"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error)
}

type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	// GetForUpdate locks the row when called inside a transaction.
	GetForUpdate(ctx context.Context, id int64) (*Request, error)
	List(ctx context.Context, f RequestFilter) ([]*Request, int, error)
	ListByAppointment(ctx context.Context, appointmentID int64) ([]*Request, error)
	// UpdateState bumps the version only when it still equals expectedVersion.
	UpdateState(ctx context.Context, id int64, state RequestState, expectedVersion int) (*Request, error)
}

type RequestTypeRepository interface {
	Create(ctx context.Context, rt *RequestType) error
	GetByID(ctx context.Context, id int64) (*RequestType, error)
	List(ctx context.Context) ([]*RequestType, error)
}

// PatientResolver maps booking form details to a patient id, registering the
// patient on first contact.
type PatientResolver interface {
	Resolve(ctx context.Context, p PatientDetails) (int64, error)
}

// NurseDirectory returns the nurse assigned to a doctor, or ErrNotFound.
type NurseDirectory interface {
	NurseFor(ctx context.Context, doctorID int64) (int64, error)
}
