package calendar

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var (
	march29 = Date{Year: 2025, Month: time.March, Day: 29}
	nineAM  = time.Date(2025, 3, 29, 9, 0, 0, 0, time.UTC)
)

func newTestReconciler() *Reconciler {
	return NewReconciler(time.UTC, zerolog.Nop())
}

func appt(id, doctorID int64, from time.Time) Appointment {
	return Appointment{
		ID:                    id,
		DoctorID:              doctorID,
		EventType:             "checkup",
		DateFrom:              from,
		DateTo:                from.Add(30 * time.Minute),
		RegistrationMandatory: true,
	}
}

func req(id, appointmentID int64, state string) Request {
	return Request{ID: id, AppointmentID: appointmentID, State: state, Version: 1}
}

func TestReconcile_NoRequests(t *testing.T) {
	slots := newTestReconciler().Reconcile([]Appointment{appt(1, 7, nineAM)}, nil, 7, march29)

	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	s := slots[0]
	if s.Status != StatusAvailable {
		t.Errorf("expected available, got %s", s.Status)
	}
	if s.RequestID != nil {
		t.Errorf("expected no request id, got %d", *s.RequestID)
	}
	if s.Start != "09:00" {
		t.Errorf("expected start 09:00, got %s", s.Start)
	}
	if s.Reason != "checkup" {
		t.Errorf("expected event type as reason, got %q", s.Reason)
	}
}

func TestReconcile_Pending(t *testing.T) {
	slots := newTestReconciler().Reconcile(
		[]Appointment{appt(1, 7, nineAM)},
		[]Request{req(9, 1, "pending")},
		7, march29)

	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Status != StatusPending {
		t.Errorf("expected pending, got %s", slots[0].Status)
	}
	if slots[0].RequestID == nil || *slots[0].RequestID != 9 {
		t.Errorf("expected request id 9, got %v", slots[0].RequestID)
	}
	if slots[0].RequestVersion != 1 {
		t.Errorf("expected request version 1, got %d", slots[0].RequestVersion)
	}
}

func TestReconcile_DeclinedIgnored(t *testing.T) {
	slots := newTestReconciler().Reconcile(
		[]Appointment{appt(1, 7, nineAM)},
		[]Request{req(9, 1, "declined"), req(10, 1, "approved")},
		7, march29)

	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", slots[0].Status)
	}
	if slots[0].RequestID == nil || *slots[0].RequestID != 10 {
		t.Errorf("expected request id 10, got %v", slots[0].RequestID)
	}
}

func TestReconcile_OnlyTerminalRequests(t *testing.T) {
	for _, state := range []string{"declined", "cancelled"} {
		slots := newTestReconciler().Reconcile(
			[]Appointment{appt(1, 7, nineAM)},
			[]Request{req(9, 1, state)},
			7, march29)
		if slots[0].Status != StatusAvailable || slots[0].RequestID != nil {
			t.Errorf("%s: expected available with no request, got %+v", state, slots[0])
		}
	}
}

func TestReconcile_ExcludesOtherDoctorsAndDays(t *testing.T) {
	appointments := []Appointment{
		appt(1, 7, nineAM),
		appt(2, 8, nineAM),
		appt(3, 7, nineAM.AddDate(0, 0, 1)),
		appt(4, 7, nineAM.AddDate(0, 0, -1)),
	}
	slots := newTestReconciler().Reconcile(appointments, nil, 7, march29)

	if len(slots) != 1 || slots[0].AppointmentID != 1 {
		t.Errorf("expected only appointment 1, got %+v", slots)
	}
}

func TestReconcile_LocalDayComparison(t *testing.T) {
	// 23:30 UTC on the 28th is already the 29th in Warsaw.
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	late := time.Date(2025, 3, 28, 23, 30, 0, 0, time.UTC)
	r := NewReconciler(loc, zerolog.Nop())

	slots := r.Reconcile([]Appointment{appt(1, 7, late)}, nil, 7, march29)
	if len(slots) != 1 {
		t.Fatalf("expected the slot on the local day, got %d", len(slots))
	}
	if slots[0].Start != "00:30" {
		t.Errorf("expected local start 00:30, got %s", slots[0].Start)
	}
	if got := newTestReconciler().Reconcile([]Appointment{appt(1, 7, late)}, nil, 7, march29); len(got) != 0 {
		t.Errorf("expected no slot on the UTC day, got %d", len(got))
	}
}

func TestReconcile_SortedByStart(t *testing.T) {
	appointments := []Appointment{
		appt(5, 7, nineAM.Add(2*time.Hour)),
		appt(3, 7, nineAM),
		appt(4, 7, nineAM.Add(time.Hour)),
		appt(2, 7, nineAM),
	}
	slots := newTestReconciler().Reconcile(appointments, nil, 7, march29)

	var ids []int64
	for _, s := range slots {
		ids = append(ids, s.AppointmentID)
	}
	want := []int64{2, 3, 4, 5}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("expected order %v, got %v", want, ids)
	}
	if appointments[0].ID != 5 {
		t.Error("input slice must not be reordered")
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	r := newTestReconciler()
	appointments := []Appointment{appt(2, 7, nineAM.Add(time.Hour)), appt(1, 7, nineAM)}
	requests := []Request{req(9, 1, "pending"), req(10, 2, "approved")}

	first := r.Reconcile(appointments, requests, 7, march29)
	second := r.Reconcile(appointments, requests, 7, march29)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical output, got %+v and %+v", first, second)
	}
}

func TestReconcile_ReasonFallback(t *testing.T) {
	tests := []struct {
		name        string
		eventType   string
		description string
		withRequest bool
		want        string
	}{
		{"request description", "checkup", "back pain", true, "back pain"},
		{"blank description", "checkup", "   ", true, "checkup"},
		{"no request", "surgery", "", false, "surgery"},
		{"nothing", " ", "", true, UnspecifiedReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := appt(1, 7, nineAM)
			a.EventType = tt.eventType
			var requests []Request
			if tt.withRequest {
				q := req(9, 1, "pending")
				q.Description = tt.description
				requests = append(requests, q)
			}
			slots := newTestReconciler().Reconcile([]Appointment{a}, requests, 7, march29)
			if slots[0].Reason != tt.want {
				t.Errorf("expected reason %q, got %q", tt.want, slots[0].Reason)
			}
		})
	}
}

func TestReconcile_UnknownStateFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	r := NewReconciler(time.UTC, zerolog.New(&buf))

	q := req(9, 1, "booked")
	q.Description = "back pain"
	slots := r.Reconcile([]Appointment{appt(1, 7, nineAM)}, []Request{q}, 7, march29)

	if slots[0].Status != StatusAvailable || slots[0].RequestID != nil {
		t.Errorf("expected available with no request, got %+v", slots[0])
	}
	if slots[0].Reason != "checkup" {
		t.Errorf("expected event type as reason, got %q", slots[0].Reason)
	}
	if !strings.Contains(buf.String(), "data_shape_anomaly") {
		t.Errorf("expected anomaly to be logged, got %q", buf.String())
	}
}

func TestReconcile_CompletedFreesSlot(t *testing.T) {
	var buf bytes.Buffer
	r := NewReconciler(time.UTC, zerolog.New(&buf))

	q := req(9, 1, "completed")
	q.Description = "follow-up"
	slots := r.Reconcile([]Appointment{appt(1, 7, nineAM)}, []Request{q}, 7, march29)

	if slots[0].Status != StatusAvailable {
		t.Errorf("expected available, got %s", slots[0].Status)
	}
	if slots[0].RequestID == nil || *slots[0].RequestID != 9 {
		t.Errorf("expected completed request to stay referenced, got %v", slots[0].RequestID)
	}
	if slots[0].Reason != "follow-up" {
		t.Errorf("expected description as reason, got %q", slots[0].Reason)
	}
	if !strings.Contains(buf.String(), "completed request occupies slot") {
		t.Errorf("expected completed anomaly to be logged, got %q", buf.String())
	}
}

func TestReconcile_CompletedAheadOfPendingLogsBoth(t *testing.T) {
	var buf bytes.Buffer
	r := NewReconciler(time.UTC, zerolog.New(&buf))

	slots := r.Reconcile(
		[]Appointment{appt(1, 7, nineAM)},
		[]Request{req(9, 1, "completed"), req(10, 1, "pending")},
		7, march29)

	if slots[0].Status != StatusAvailable || slots[0].RequestID == nil || *slots[0].RequestID != 9 {
		t.Errorf("expected first match 9 shown available, got %+v", slots[0])
	}
	logs := buf.String()
	for _, want := range []string{"2 matching requests, using the first of [9 10]", "completed request occupies slot"} {
		if !strings.Contains(logs, want) {
			t.Errorf("expected %q in logs, got %q", want, logs)
		}
	}
	if strings.Contains(logs, "non-terminal") {
		t.Errorf("completed request must not be called non-terminal: %q", logs)
	}
}

func TestReconcile_MultipleActiveLogsAnomaly(t *testing.T) {
	var buf bytes.Buffer
	r := NewReconciler(time.UTC, zerolog.New(&buf))

	slots := r.Reconcile(
		[]Appointment{appt(1, 7, nineAM)},
		[]Request{req(9, 1, "pending"), req(10, 1, "approved")},
		7, march29)

	if slots[0].RequestID == nil || *slots[0].RequestID != 9 {
		t.Errorf("expected first relevant request 9, got %v", slots[0].RequestID)
	}
	if !strings.Contains(buf.String(), "data_shape_anomaly") {
		t.Errorf("expected anomaly to be logged, got %q", buf.String())
	}
}

func TestReconcile_WalkIn(t *testing.T) {
	a := appt(1, 7, nineAM)
	a.RegistrationMandatory = false
	slots := newTestReconciler().Reconcile([]Appointment{a, appt(2, 7, nineAM.Add(time.Hour))}, nil, 7, march29)

	if !slots[0].WalkIn || slots[1].WalkIn {
		t.Errorf("expected only appointment 1 to be walk-in, got %+v", slots)
	}
	if slots[0].Status != StatusAvailable {
		t.Errorf("walk-in status must still derive from requests, got %s", slots[0].Status)
	}
}

func TestAllowedActions(t *testing.T) {
	id := int64(9)
	pending := Slot{Status: StatusPending, RequestID: &id}
	confirmed := Slot{Status: StatusConfirmed, RequestID: &id}
	available := Slot{Status: StatusAvailable}

	tests := []struct {
		name string
		slot Slot
		role string
		want []Action
	}{
		{"doctor pending", pending, "doctor", []Action{ActionApprove, ActionDecline}},
		{"admin pending", pending, "admin", []Action{ActionApprove, ActionDecline}},
		{"nurse pending", pending, "nurse", []Action{ActionApprove}},
		{"patient pending", pending, "patient", nil},
		{"doctor confirmed", confirmed, "doctor", []Action{ActionCancel}},
		{"nurse confirmed", confirmed, "nurse", nil},
		{"doctor available", available, "doctor", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllowedActions(tt.slot, tt.role); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
