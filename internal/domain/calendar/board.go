package calendar

import (
	"sync"
)

// Board holds the two independently fetched lists and refuses to reconcile
// until both have arrived.
type Board struct {
	mu           sync.RWMutex
	appointments []Appointment
	requests     []Request
	haveAppts    bool
	haveRequests bool
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) SetAppointments(list []Appointment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appointments = append([]Appointment(nil), list...)
	b.haveAppts = true
}

func (b *Board) SetRequests(list []Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append([]Request(nil), list...)
	b.haveRequests = true
}

// Loaded reports whether both lists are present.
func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.haveAppts && b.haveRequests
}

// Reset forgets both lists, returning the board to the not-loaded state.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appointments, b.requests = nil, nil
	b.haveAppts, b.haveRequests = false, false
}

// Slots reconciles the current snapshot, or returns ErrNotLoaded.
func (b *Board) Slots(r *Reconciler, doctorID int64, date Date) ([]Slot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.haveAppts || !b.haveRequests {
		return nil, ErrNotLoaded
	}
	return r.Reconcile(b.appointments, b.requests, doctorID, date), nil
}
