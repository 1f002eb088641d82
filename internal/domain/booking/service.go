package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/events"
)

// TxRunner runs fn in a transaction; repositories join it through ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// NoTx runs fn directly. Used where no database is involved.
func NoTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RolePatient = "patient"
)

// Actor identifies who asks for a state change.
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) has(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// authorize applies the staff rules: a nurse may only approve, everything
// else needs the doctor. Admins may do anything.
func (a Actor) authorize(to RequestState) error {
	if a.has(RoleAdmin) || a.has(RoleDoctor) {
		return nil
	}
	if to == StateApproved && a.has(RoleNurse) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, to)
}

type Service struct {
	appointments AppointmentRepository
	requests     RequestRepository
	types        RequestTypeRepository
	patients     PatientResolver
	nurses       NurseDirectory
	tx           TxRunner
	pub          events.Publisher
	logger       zerolog.Logger
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithPatients enables public booking; submitted patient details are
// resolved to a patient id through p.
func WithPatients(p PatientResolver) Option {
	return func(s *Service) { s.patients = p }
}

// WithNurses assigns the doctor's nurse to publicly booked requests.
func WithNurses(n NurseDirectory) Option {
	return func(s *Service) { s.nurses = n }
}

func NewService(appt AppointmentRepository, req RequestRepository, rt RequestTypeRepository, tx TxRunner, pub events.Publisher, logger zerolog.Logger, opts ...Option) *Service {
	if tx == nil {
		tx = NoTx
	}
	if pub == nil {
		pub = events.Noop()
	}
	s := &Service{
		appointments: appt,
		requests:     req,
		types:        rt,
		tx:           tx,
		pub:          pub,
		logger:       logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Appointment --

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.EventType = strings.TrimSpace(a.EventType)
	if a.DoctorID <= 0 {
		return invalidf("doctor_id is required")
	}
	if a.EventType == "" {
		return invalidf("event_type is required")
	}
	if a.DateFrom.IsZero() || a.DateTo.IsZero() {
		return invalidf("date_from and date_to are required")
	}
	if a.Duration() <= 0 {
		return invalidf("date_to must be after date_from")
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	s.publish(ctx, events.TypeAppointmentCreated, a.ID, a.DoctorID, a)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error) {
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, 0, invalidf("to must be after from")
	}
	return s.appointments.List(ctx, f)
}

// -- Request --

// CreateRequest files a new pending request. The appointment must exist and
// must not already hold an active request.
func (s *Service) CreateRequest(ctx context.Context, r *Request) error {
	if err := s.tx(ctx, func(ctx context.Context) error {
		return s.insertRequest(ctx, r)
	}); err != nil {
		return err
	}
	s.publish(ctx, events.TypeRequestCreated, r.ID, r.DoctorID, r)
	return nil
}

// Book files a request from the public booking form. The patient is resolved
// (and registered when unknown) and the doctor's nurse assigned in the same
// transaction as the request itself.
func (s *Service) Book(ctx context.Context, b Booking) (*Request, error) {
	if s.patients == nil {
		return nil, ErrBookingDisabled
	}
	b.Patient.PersonalNumber = strings.TrimSpace(b.Patient.PersonalNumber)
	b.Patient.Name = strings.TrimSpace(b.Patient.Name)
	b.Patient.Surname = strings.TrimSpace(b.Patient.Surname)
	switch {
	case b.Patient.PersonalNumber == "":
		return nil, invalidf("personal_number is required")
	case b.Patient.Name == "" || b.Patient.Surname == "":
		return nil, invalidf("name and surname are required")
	case b.DoctorID <= 0:
		return nil, invalidf("doctor_id is required")
	case b.RequestTypeID <= 0:
		return nil, invalidf("request_type_id is required")
	}

	rt := b.RequestTypeID
	r := &Request{
		AppointmentID: b.AppointmentID,
		DoctorID:      b.DoctorID,
		RequestTypeID: &rt,
		Description:   b.Description,
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		patientID, err := s.patients.Resolve(ctx, b.Patient)
		if err != nil {
			return fmt.Errorf("resolve patient: %w", err)
		}
		r.PatientID = patientID

		if s.nurses != nil {
			nurseID, err := s.nurses.NurseFor(ctx, b.DoctorID)
			switch {
			case err == nil:
				r.NurseID = &nurseID
			case !errors.Is(err, ErrNotFound):
				return fmt.Errorf("look up nurse: %w", err)
			}
		}
		return s.insertRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("request_id", r.ID).
		Int64("appointment_id", r.AppointmentID).
		Int64("doctor_id", r.DoctorID).
		Bool("nurse_assigned", r.NurseID != nil).
		Msg("public booking filed")
	s.publish(ctx, events.TypeRequestCreated, r.ID, r.DoctorID, r)
	return r, nil
}

// insertRequest validates r and stores it. It must run inside s.tx so the
// active-request check and the insert see the same data.
func (s *Service) insertRequest(ctx context.Context, r *Request) error {
	if r.AppointmentID <= 0 {
		return invalidf("appointment_id is required")
	}
	if r.PatientID <= 0 {
		return invalidf("patient_id is required")
	}
	if r.State == "" {
		r.State = StatePending
	}
	if r.State != StatePending {
		return invalidf("new requests must be %s, got %q", StatePending, r.State)
	}
	r.Description = strings.TrimSpace(r.Description)

	appt, err := s.appointments.GetByID(ctx, r.AppointmentID)
	if errors.Is(err, ErrNotFound) {
		return invalidf("appointment %d does not exist", r.AppointmentID)
	}
	if err != nil {
		return err
	}
	if r.DoctorID == 0 {
		r.DoctorID = appt.DoctorID
	}
	if r.DoctorID != appt.DoctorID {
		return invalidf("doctor_id %d does not own appointment %d", r.DoctorID, appt.ID)
	}
	if r.RequestTypeID != nil {
		if _, err := s.types.GetByID(ctx, *r.RequestTypeID); errors.Is(err, ErrNotFound) {
			return invalidf("request type %d does not exist", *r.RequestTypeID)
		} else if err != nil {
			return err
		}
	}

	existing, err := s.requests.ListByAppointment(ctx, r.AppointmentID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.State.Active() {
			return ErrActiveRequestExists
		}
	}
	return s.requests.Create(ctx, r)
}

func (s *Service) GetRequest(ctx context.Context, id int64) (*Request, error) {
	return s.requests.GetByID(ctx, id)
}

// ListAppointmentRequests returns every request filed against an appointment,
// oldest first.
func (s *Service) ListAppointmentRequests(ctx context.Context, appointmentID int64) ([]*Request, error) {
	if _, err := s.appointments.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.requests.ListByAppointment(ctx, appointmentID)
}

func (s *Service) ListRequests(ctx context.Context, f RequestFilter) ([]*Request, int, error) {
	for _, st := range f.States {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidState, st)
		}
	}
	return s.requests.List(ctx, f)
}

type stateChange struct {
	From    RequestState `json:"from"`
	To      RequestState `json:"to"`
	Version int          `json:"version"`
	Actor   string       `json:"actor,omitempty"`
}

// TransitionRequest moves a request to state `to`. expectedVersion must match
// the stored version; the returned request carries the new version.
func (s *Service) TransitionRequest(ctx context.Context, id int64, to RequestState, expectedVersion int, actor Actor) (*Request, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, to)
	}
	if expectedVersion <= 0 {
		return nil, ErrVersionRequired
	}

	var (
		updated *Request
		from    RequestState
	)
	err := s.tx(ctx, func(ctx context.Context) error {
		current, err := s.requests.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &ConflictError{RequestID: id, Expected: expectedVersion, Current: current.Version}
		}
		if !current.State.CanTransition(to) {
			return &TransitionError{From: current.State, To: to}
		}
		if err := actor.authorize(to); err != nil {
			return err
		}
		from = current.State
		updated, err = s.requests.UpdateState(ctx, id, to, expectedVersion)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("request_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("version", updated.Version).
		Str("actor", actor.ID).
		Msg("request state changed")

	s.publish(ctx, events.TypeRequestStateChanged, id, updated.DoctorID, stateChange{
		From: from, To: to, Version: updated.Version, Actor: actor.ID,
	})
	return updated, nil
}

// -- Request types --

func (s *Service) CreateRequestType(ctx context.Context, rt *RequestType) error {
	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Name == "" {
		return invalidf("name is required")
	}
	if rt.Length < 0 {
		return invalidf("length must not be negative")
	}
	return s.types.Create(ctx, rt)
}

func (s *Service) ListRequestTypes(ctx context.Context) ([]*RequestType, error) {
	return s.types.List(ctx)
}

// publish runs after the write has committed. Delivery failures are logged;
// the write itself already succeeded.
func (s *Service) publish(ctx context.Context, eventType string, subject, doctorID int64, payload interface{}) {
	ev, err := events.New(eventType, subject, doctorID, payload)
	if err == nil {
		err = s.pub.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Int64("subject", subject).Msg("event publish failed")
	}
}
