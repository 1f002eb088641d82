package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/auth"
)

func runAudit(t *testing.T, method, target string, handler echo.HandlerFunc) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(auth.WithIdentity(context.Background(), "nurse-1", []string{"nurse"}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	Audit(logger)(handler)(c)

	if buf.Len() == 0 {
		return nil
	}
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("audit line is not JSON: %v (%s)", err, buf.String())
	}
	return line
}

func TestAudit_LogsAccess(t *testing.T) {
	line := runAudit(t, http.MethodPut, "/api/v1/requests/42", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if line == nil {
		t.Fatal("expected an audit line")
	}
	want := map[string]interface{}{
		"type":        "access_audit",
		"request_id":  "req-123",
		"user_id":     "nurse-1",
		"resource":    "requests",
		"resource_id": "42",
		"action":      "update",
		"status":      float64(200),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s: got %v, want %v", k, line[k], v)
		}
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	line := runAudit(t, http.MethodGet, "/api/v1/appointments/7", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	if line["status"] != float64(404) {
		t.Errorf("expected status 404, got %v", line["status"])
	}
}

func TestAudit_PatientQuery(t *testing.T) {
	line := runAudit(t, http.MethodGet, "/api/v1/requests?patient_id=11", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if line["patient_id"] != "11" || line["resource_id"] != "" || line["action"] != "read" {
		t.Errorf("unexpected audit line: %v", line)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	line := runAudit(t, http.MethodGet, "/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if line != nil {
		t.Errorf("expected no audit line, got %v", line)
	}
}

func TestSplitResource(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/requests/42", "requests", "42"},
		{"/api/v1/appointments/7/requests", "appointments", "7"},
		{"/api/v1/calendar/slots/1/approve", "calendar", ""},
		{"/api/v1/request-types", "request-types", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		r, id := splitResource(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("splitResource(%q) = %q, %q", tt.path, r, id)
		}
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("%s: got %q, want %q", method, got, want)
		}
	}
}
