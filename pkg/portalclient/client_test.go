package portalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api/v1", WithToken("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/api/v1"} {
		if _, err := New(u); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}

func TestListAppointments_Pages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/appointments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if r.URL.Query().Get("doctor_id") != "7" {
			t.Errorf("expected doctor_id=7, got %s", r.URL.RawQuery)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		id := offset/pageSize + 1
		fmt.Fprintf(w, `{"data":[{"id":%d,"doctor_id":7,"event_type":"checkup","date_from":"2025-03-29T09:00:00Z","date_to":"2025-03-29T09:30:00Z"}],"total":2,"has_more":%t}`,
			id, id == 1)
	})

	items, err := c.ListAppointments(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 2 {
		t.Errorf("unexpected items: %+v", items)
	}
	if !items[0].RegistrationMandatory {
		t.Error("expected missing registration flag to default to true")
	}
}

func TestListRequests_BareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":9,"appointment_id":1,"status":"pending","reason":"back pain","type_id":3}]`))
	})

	items, err := c.ListRequests(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 request, got %d", len(items))
	}
	r := items[0]
	if r.State != "pending" || r.Description != "back pain" || r.RequestTypeID == nil || *r.RequestTypeID != 3 {
		t.Errorf("legacy aliases not applied: %+v", r)
	}
}

func TestAppointment_LegacyAliases(t *testing.T) {
	var a Appointment
	raw := `{"id":1,"doctor_id":7,"start_date_time":"2025-03-29T09:00:00Z","end_date_time":"2025-03-29T09:30:00Z","mandatory_registration":false}`
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 29, 9, 0, 0, 0, time.UTC)
	if !a.DateFrom.Equal(want) || !a.DateTo.Equal(want.Add(30*time.Minute)) {
		t.Errorf("unexpected times: %v %v", a.DateFrom, a.DateTo)
	}
	if a.RegistrationMandatory {
		t.Error("expected mandatory_registration=false to be honoured")
	}

	// The current name wins over the legacy one.
	raw = `{"id":1,"registration_mandatory":true,"mandatory_registration":false}`
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.RegistrationMandatory {
		t.Error("expected registration_mandatory to take precedence")
	}
}

func TestRequest_CurrentNamesWin(t *testing.T) {
	var r Request
	raw := `{"id":9,"state":"approved","status":"pending","description":"new","reason":"old"}`
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.State != "approved" || r.Description != "new" {
		t.Errorf("unexpected request: %+v", r)
	}
}

func TestUpdateRequestState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/requests/9" {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("If-Match") != `"2"` {
			t.Errorf("expected If-Match \"2\", got %q", r.Header.Get("If-Match"))
		}
		var body updateState
		json.NewDecoder(r.Body).Decode(&body)
		if body.State != "approved" || body.Version != 2 {
			t.Errorf("unexpected body: %+v", body)
		}
		w.Write([]byte(`{"id":9,"appointment_id":1,"state":"approved","version":3}`))
	})

	r, err := c.UpdateRequestState(context.Background(), 9, "approved", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Version != 3 || r.State != "approved" {
		t.Errorf("unexpected request: %+v", r)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		conflict  bool
	}{
		{"conflict", http.StatusConflict, false, true},
		{"unprocessable", http.StatusUnprocessableEntity, false, false},
		{"server error", http.StatusBadGateway, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			})
			_, err := c.UpdateRequestState(context.Background(), 9, "approved", 1)

			var transient *TransientNetworkError
			if errors.As(err, &transient) != tt.transient {
				t.Errorf("transient = %v, err = %v", !tt.transient, err)
			}
			if errors.Is(err, ErrConflict) != tt.conflict {
				t.Errorf("conflict mismatch for %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status || apiErr.Message != "nope" {
				t.Errorf("expected APIError %d nope, got %v", tt.status, err)
			}
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.ListRequests(context.Background(), 7)
	var transient *TransientNetworkError
	if !errors.As(err, &transient) {
		t.Errorf("expected TransientNetworkError, got %v", err)
	}
}
