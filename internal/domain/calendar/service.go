package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hospital/portal/internal/platform/cache"
	"github.com/hospital/portal/internal/platform/events"
)

// Source fetches the raw lists the calendar is built from.
type Source interface {
	ListAppointments(ctx context.Context, doctorID int64) ([]Appointment, error)
	ListRequests(ctx context.Context, doctorID int64) ([]Request, error)
}

// Actions changes request state on the backend.
type Actions interface {
	TransitionRequest(ctx context.Context, requestID int64, state string, version int) error
}

type Service struct {
	source  Source
	actions Actions
	rec     *Reconciler
	cache   cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewService wires a calendar. A nil cache or a non-positive ttl disables
// caching of reconciled days.
func NewService(src Source, act Actions, rec *Reconciler, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Noop()
	}
	return &Service{
		source:  src,
		actions: act,
		rec:     rec,
		cache:   c,
		ttl:     ttl,
		logger:  logger.With().Str("component", "calendar").Logger(),
	}
}

func (s *Service) Reconciler() *Reconciler { return s.rec }

// Load fetches appointments and requests concurrently. The board is returned
// only once both fetches have succeeded.
func (s *Service) Load(ctx context.Context, doctorID int64) (*Board, error) {
	board := NewBoard()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.source.ListAppointments(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("fetch appointments: %w", err)
		}
		board.SetAppointments(list)
		return nil
	})
	g.Go(func() error {
		list, err := s.source.ListRequests(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("fetch requests: %w", err)
		}
		board.SetRequests(list)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return board, nil
}

// Day returns the doctor's slots on date, served from cache when possible.
func (s *Service) Day(ctx context.Context, doctorID int64, date Date) ([]Slot, error) {
	key := dayKey(doctorID, date)
	if s.ttl > 0 {
		var cached []Slot
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("calendar cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	slots, err := s.FreshDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	if s.ttl > 0 {
		if err := s.cache.Set(ctx, key, slots, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("calendar cache write failed")
		}
	}
	return slots, nil
}

// FreshDay reconciles from newly fetched data, bypassing the cache.
func (s *Service) FreshDay(ctx context.Context, doctorID int64, date Date) ([]Slot, error) {
	board, err := s.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return board.Slots(s.rec, doctorID, date)
}

// Slot finds the slot of appointmentID on the doctor's day from fresh data.
func (s *Service) Slot(ctx context.Context, doctorID int64, date Date, appointmentID int64) (Slot, error) {
	slots, err := s.FreshDay(ctx, doctorID, date)
	if err != nil {
		return Slot{}, err
	}
	for _, sl := range slots {
		if sl.AppointmentID == appointmentID {
			return sl, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: appointment %d on %s", ErrSlotNotFound, appointmentID, date)
}

func (s *Service) Approve(ctx context.Context, slot Slot) error {
	return s.Act(ctx, slot, ActionApprove)
}

func (s *Service) Decline(ctx context.Context, slot Slot) error {
	return s.Act(ctx, slot, ActionDecline)
}

// CancelConfirmed cancels the approved request behind slot.
func (s *Service) CancelConfirmed(ctx context.Context, slot Slot) error {
	return s.Act(ctx, slot, ActionCancel)
}

// Act sends the state change for action. The slot itself is never modified;
// callers refetch the day afterwards whether or not the call succeeded.
func (s *Service) Act(ctx context.Context, slot Slot, action Action) error {
	target := action.TargetState()
	if target == "" {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if slot.RequestID == nil {
		return &MissingReferenceError{AppointmentID: slot.AppointmentID, Action: action}
	}

	err := s.actions.TransitionRequest(ctx, *slot.RequestID, target, slot.RequestVersion)
	s.Invalidate(ctx, slot.DoctorID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("action", string(action)).
			Int64("request_id", *slot.RequestID).
			Int64("appointment_id", slot.AppointmentID).
			Msg("calendar action failed")
		return err
	}
	return nil
}

// Invalidate drops every cached day of doctorID.
func (s *Service) Invalidate(ctx context.Context, doctorID int64) {
	if err := s.cache.DeletePrefix(ctx, doctorPrefix(doctorID)); err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doctorID).Msg("calendar cache invalidation failed")
	}
}

// InvalidateOn returns a subscriber that drops cached days of the doctor an
// event concerns.
func InvalidateOn(c cache.Cache) events.Publisher {
	return events.Func(func(ctx context.Context, ev events.Event) error {
		if ev.DoctorID == 0 {
			return nil
		}
		return c.DeletePrefix(ctx, doctorPrefix(ev.DoctorID))
	})
}

func doctorPrefix(doctorID int64) string {
	return fmt.Sprintf("calendar:doctor:%d:", doctorID)
}

func dayKey(doctorID int64, date Date) string {
	return doctorPrefix(doctorID) + date.String()
}
