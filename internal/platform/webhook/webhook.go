// Package webhook delivers request lifecycle events to HTTP endpoints. Each
// delivery is signed with HMAC-SHA256 so receivers can check its origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/events"
)

const (
	SignatureHeader = "X-Portal-Signature"
	EventHeader     = "X-Portal-Event"
	TimestampHeader = "X-Portal-Timestamp"
)

// Endpoint is one delivery target. Events holds subscription patterns:
// exact ("request.created") or wildcard ("request.*", "*.created"). An empty
// list subscribes to everything.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// SignPayload computes an HMAC-SHA256 signature of payload under secret,
// hex encoded.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.httpClient = c }
}

// WithRetries sets how many times a failed delivery is repeated and the pause
// between attempts.
func WithRetries(n int, delay time.Duration) Option {
	return func(p *Publisher) {
		p.maxRetries = n
		p.retryDelay = delay
	}
}

// Publisher is an events.Publisher posting every event to the endpoints
// subscribed to its type.
type Publisher struct {
	endpoints  []Endpoint
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// New validates endpoints and returns a publisher for them.
func New(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Publisher, error) {
	for _, ep := range endpoints {
		if err := validateURL(ep.URL); err != nil {
			return nil, err
		}
	}
	p := &Publisher{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
		retryDelay: time.Second,
		logger:     logger.With().Str("component", "events.webhook").Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// FromURLs builds endpoints that share one secret and one subscription list.
func FromURLs(urls []string, secret string, patterns []string) []Endpoint {
	out := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		out = append(out, Endpoint{URL: u, Secret: secret, Events: patterns})
	}
	return out
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// eventMatches reports whether eventType matches a subscription pattern.
func eventMatches(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) subscribed(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, pat := range ep.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Publish delivers ev to every subscribed endpoint. All endpoints are tried;
// their errors are joined.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	var errs []error
	for _, ep := range p.endpoints {
		if !ep.subscribed(ev.Type) {
			continue
		}
		if err := p.deliver(ctx, ep, ev, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) deliver(ctx context.Context, ep Endpoint, ev events.Event, payload []byte) error {
	var err error
	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		var retry bool
		retry, err = p.post(ctx, ep, ev, payload)
		if err == nil {
			p.logger.Debug().Str("event_id", ev.ID).Str("url", ep.URL).Int("attempt", attempt).Msg("webhook delivered")
			return nil
		}
		if !retry || attempt > p.maxRetries {
			break
		}
		p.logger.Warn().Err(err).Str("url", ep.URL).Int("attempt", attempt).Msg("webhook delivery failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
	return fmt.Errorf("deliver event %s to %s: %w", ev.ID, ep.URL, err)
}

// post sends one attempt. It reports whether a failure is worth retrying:
// transport errors and 5xx are, other answers are not.
func (p *Publisher) post(ctx context.Context, ep Endpoint, ev events.Event, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, ev.Type)
	req.Header.Set(TimestampHeader, time.Now().UTC().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, ep.Secret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	return resp.StatusCode >= 500, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
}

func (p *Publisher) Close() error { return nil }
