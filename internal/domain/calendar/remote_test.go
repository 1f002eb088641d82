package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/portal/pkg/portalclient"
)

func TestRemoteBackend_Day(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/appointments":
			w.Write([]byte(`{"data":[{"id":1,"doctor_id":7,"event_type":"checkup","start_date_time":"2025-03-29T09:00:00Z","end_date_time":"2025-03-29T09:30:00Z"}],"total":1,"has_more":false}`))
		case "/api/v1/requests":
			w.Write([]byte(`{"data":[{"id":9,"appointment_id":1,"status":"declined"},{"id":10,"appointment_id":1,"state":"approved","version":4}],"total":2,"has_more":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := portalclient.New(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	backend := NewRemoteBackend(client)
	svc := NewService(backend, backend, NewReconciler(time.UTC, zerolog.Nop()), nil, 0, zerolog.Nop())

	slots, err := svc.Day(context.Background(), 7, march29)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Status != StatusConfirmed || *slots[0].RequestID != 10 || slots[0].RequestVersion != 4 {
		t.Errorf("unexpected slot: %+v", slots[0])
	}
}
