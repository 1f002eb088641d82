package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const startLayout = "15:04"

// Reconciler joins appointments with requests into the slots of one doctor's
// day. It holds no state besides its location and logger.
type Reconciler struct {
	loc    *time.Location
	logger zerolog.Logger
}

func NewReconciler(loc *time.Location, logger zerolog.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{loc: loc, logger: logger.With().Str("component", "reconciler").Logger()}
}

// Location is the zone calendar days are compared in.
func (r *Reconciler) Location() *time.Location { return r.loc }

// Reconcile returns the slots of doctorID on date, ordered by start time and
// then appointment id. Inputs are not modified.
func (r *Reconciler) Reconcile(appointments []Appointment, requests []Request, doctorID int64, date Date) []Slot {
	day := lo.Filter(appointments, func(a Appointment, _ int) bool {
		return a.DoctorID == doctorID && date.Contains(a.DateFrom, r.loc)
	})
	sort.SliceStable(day, func(i, j int) bool {
		if !day[i].DateFrom.Equal(day[j].DateFrom) {
			return day[i].DateFrom.Before(day[j].DateFrom)
		}
		return day[i].ID < day[j].ID
	})

	return lo.Map(day, func(a Appointment, _ int) Slot {
		return r.slot(a, requests)
	})
}

func (r *Reconciler) slot(a Appointment, requests []Request) Slot {
	slot := Slot{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		Start:         a.DateFrom.In(r.loc).Format(startLayout),
		StartsAt:      a.DateFrom,
		EndsAt:        a.DateTo,
		Status:        StatusAvailable,
		WalkIn:        !a.RegistrationMandatory,
		Reason:        reason("", a.EventType),
	}

	relevant := lo.Filter(requests, func(q Request, _ int) bool {
		return q.AppointmentID == a.ID && q.State != stateDeclined && q.State != stateCancelled
	})
	if len(relevant) == 0 {
		return slot
	}
	if len(relevant) > 1 {
		r.anomaly(&DataShapeAnomaly{
			AppointmentID: a.ID,
			RequestID:     relevant[0].ID,
			Detail: fmt.Sprintf("%d matching requests, using the first of %v", len(relevant),
				lo.Map(relevant, func(q Request, _ int) int64 { return q.ID })),
		})
	}

	req := relevant[0]
	switch req.State {
	case statePending:
		slot.Status = StatusPending
	case stateApproved:
		slot.Status = StatusConfirmed
	case stateCompleted:
		// Free again, but the slot still points at the visit.
		r.anomaly(&DataShapeAnomaly{
			AppointmentID: a.ID,
			RequestID:     req.ID,
			Detail:        "completed request occupies slot",
		})
	default:
		r.anomaly(&DataShapeAnomaly{
			AppointmentID: a.ID,
			RequestID:     req.ID,
			Detail:        fmt.Sprintf("unknown request state %q", req.State),
		})
		return slot
	}

	id := req.ID
	slot.RequestID = &id
	slot.RequestVersion = req.Version
	slot.Reason = reason(req.Description, a.EventType)
	return slot
}

func (r *Reconciler) anomaly(a *DataShapeAnomaly) {
	r.logger.Warn().
		Err(a).
		Str("type", "data_shape_anomaly").
		Int64("appointment_id", a.AppointmentID).
		Int64("request_id", a.RequestID).
		Msg("request data outside expected shape")
}

// reason picks the first non-blank label.
func reason(description, eventType string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	if e := strings.TrimSpace(eventType); e != "" {
		return e
	}
	return UnspecifiedReason
}
