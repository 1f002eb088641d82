package calendar

import (
	"context"

	"github.com/samber/lo"

	"github.com/hospital/portal/pkg/portalclient"
)

// RemoteBackend serves the calendar from a portal API reached over HTTP.
type RemoteBackend struct {
	client *portalclient.Client
}

func NewRemoteBackend(client *portalclient.Client) *RemoteBackend {
	return &RemoteBackend{client: client}
}

func (b *RemoteBackend) ListAppointments(ctx context.Context, doctorID int64) ([]Appointment, error) {
	items, err := b.client.ListAppointments(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(a portalclient.Appointment, _ int) Appointment {
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

func (b *RemoteBackend) ListRequests(ctx context.Context, doctorID int64) ([]Request, error) {
	items, err := b.client.ListRequests(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(r portalclient.Request, _ int) Request {
		return Request{
			ID:            r.ID,
			AppointmentID: r.AppointmentID,
			State:         r.State,
			Description:   r.Description,
			Version:       r.Version,
		}
	}), nil
}

func (b *RemoteBackend) TransitionRequest(ctx context.Context, requestID int64, state string, version int) error {
	_, err := b.client.UpdateRequestState(ctx, requestID, state, version)
	return err
}
