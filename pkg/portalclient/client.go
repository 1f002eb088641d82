// Package portalclient talks to the portal booking API over HTTP. It is used
// by the calendar when the booking backend runs as a separate service.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 10 * time.Second
	pageSize       = 100
)

// ErrConflict is matched by APIErrors carrying 409.
var ErrConflict = errors.New("conflict")

// APIError is a non-2xx answer that is not worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrConflict && e.StatusCode == http.StatusConflict
}

// TransientNetworkError wraps transport failures and 5xx answers. The call
// may succeed if the user retries it.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("portal api %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// New returns a client for the API rooted at baseURL, e.g.
// "https://portal.example.org/api/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid portal base url %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// page mirrors the list envelope of the API.
type page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ListAppointments returns every appointment of doctorID, following pages.
func (c *Client) ListAppointments(ctx context.Context, doctorID int64) ([]Appointment, error) {
	return listAll[Appointment](ctx, c, "/appointments", doctorID)
}

// ListRequests returns every request of doctorID, following pages.
func (c *Client) ListRequests(ctx context.Context, doctorID int64) ([]Request, error) {
	return listAll[Request](ctx, c, "/requests", doctorID)
}

func listAll[T any](ctx context.Context, c *Client, path string, doctorID int64) ([]T, error) {
	var out []T
	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		q.Set("doctor_id", strconv.FormatInt(doctorID, 10))
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))

		raw, err := c.do(ctx, http.MethodGet, path, q, nil, nil)
		if err != nil {
			return nil, err
		}
		// Older deployments answer with a bare array.
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
			return append(out, items...), nil
		}
		var p page[T]
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, p.Data...)
		if !p.HasMore || len(p.Data) == 0 {
			return out, nil
		}
	}
}

type updateState struct {
	State   string `json:"state"`
	Version int    `json:"version,omitempty"`
}

// UpdateRequestState asks for a state transition. version is sent both in
// the body and as If-Match.
func (c *Client) UpdateRequestState(ctx context.Context, requestID int64, state string, version int) (*Request, error) {
	body, err := json.Marshal(updateState{State: state, Version: version})
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if version > 0 {
		header.Set("If-Match", strconv.Quote(strconv.Itoa(version)))
	}
	raw, err := c.do(ctx, http.MethodPut, "/requests/"+strconv.FormatInt(requestID, 10), nil, header, body)
	if err != nil {
		return nil, err
	}
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &r, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, header http.Header, body []byte) ([]byte, error) {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = q.Encode()
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &TransientNetworkError{Op: op, Err: err}
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("portal api call")

	switch {
	case resp.StatusCode >= 500:
		return nil, &TransientNetworkError{Op: op, Err: &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}}
	case resp.StatusCode >= 300:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, nil
}

// errorMessage extracts echo's {"message": ...} body, or returns it raw.
func errorMessage(raw []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
