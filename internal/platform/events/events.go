// Package events publishes request lifecycle events. Publishers fan out to
// in-process subscribers (cache invalidation) and, when brokers are
// configured, to a Kafka topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentCreated  = "appointment.created"
	TypeRequestCreated      = "request.created"
	TypeRequestStateChanged = "request.state_changed"
)

// Event is one domain change. Subject is the id of the changed resource.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Subject    int64           `json:"subject"`
	DoctorID   int64           `json:"doctor_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id and the payload marshalled as Data.
func New(eventType string, subject, doctorID int64, payload interface{}) (Event, error) {
	ev := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Subject:    subject,
		DoctorID:   doctorID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Data = data
	}
	return ev, nil
}

// Publisher delivers events to a destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Func adapts a function into an in-process Publisher.
type Func func(ctx context.Context, ev Event) error

func (f Func) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

func (f Func) Close() error { return nil }

type noop struct{}

// Noop discards every event.
func Noop() Publisher { return noop{} }

func (noop) Publish(context.Context, Event) error { return nil }

func (noop) Close() error { return nil }

type multi []Publisher

// Multi delivers each event to every publisher. All publishers are attempted;
// their errors are joined.
func Multi(pubs ...Publisher) Publisher {
	out := make(multi, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (m multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
