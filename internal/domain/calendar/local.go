package calendar

import (
	"context"

	"github.com/samber/lo"

	"github.com/hospital/portal/internal/domain/booking"
)

// LocalBackend serves the calendar from the booking service in the same
// process. The acting user is taken from the request context.
type LocalBackend struct {
	svc *booking.Service
}

func NewLocalBackend(svc *booking.Service) *LocalBackend {
	return &LocalBackend{svc: svc}
}

func (b *LocalBackend) ListAppointments(ctx context.Context, doctorID int64) ([]Appointment, error) {
	items, _, err := b.svc.ListAppointments(ctx, booking.AppointmentFilter{DoctorID: &doctorID})
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(a *booking.Appointment, _ int) Appointment {
		return Appointment{
			ID:                    a.ID,
			DoctorID:              a.DoctorID,
			EventType:             a.EventType,
			DateFrom:              a.DateFrom,
			DateTo:                a.DateTo,
			RegistrationMandatory: a.RegistrationMandatory,
		}
	}), nil
}

func (b *LocalBackend) ListRequests(ctx context.Context, doctorID int64) ([]Request, error) {
	items, _, err := b.svc.ListRequests(ctx, booking.RequestFilter{DoctorID: &doctorID})
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(r *booking.Request, _ int) Request {
		return Request{
			ID:            r.ID,
			AppointmentID: r.AppointmentID,
			State:         string(r.State),
			Description:   r.Description,
			Version:       r.Version,
		}
	}), nil
}

func (b *LocalBackend) TransitionRequest(ctx context.Context, requestID int64, state string, version int) error {
	_, err := b.svc.TransitionRequest(ctx, requestID, booking.RequestState(state), version, booking.ActorFromContext(ctx))
	return err
}
