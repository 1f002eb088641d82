// Package telemetry keeps in-process HTTP and domain metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospital/portal/internal/platform/events"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// LabelsKey builds the key of a request duration series.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

// GaugeFunc is sampled on every scrape.
type GaugeFunc struct {
	Name string
	Help string
	Read func() int64
}

// Metrics is the registry behind /metrics.
type Metrics struct {
	mu        sync.RWMutex
	durations map[string]*histogram
	events    map[string]*int64
	active    int64
	gauges    []GaugeFunc
}

func New() *Metrics {
	return &Metrics{
		durations: make(map[string]*histogram),
		events:    make(map[string]*int64),
	}
}

// AddGauge registers a gauge read at scrape time, such as pool sizes.
func (m *Metrics) AddGauge(g GaugeFunc) {
	m.mu.Lock()
	m.gauges = append(m.gauges, g)
	m.mu.Unlock()
}

func (m *Metrics) duration(key string) *histogram {
	m.mu.RLock()
	h, ok := m.durations[key]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.durations[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		m.durations[key] = h
	}
	return h
}

// Duration returns the series for key, or nil when nothing was recorded.
func (m *Metrics) Duration(key string) *histogram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.durations[key]
}

// CountEvent increments the counter of eventType.
func (m *Metrics) CountEvent(eventType string) {
	m.mu.RLock()
	p, ok := m.events[eventType]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if p, ok = m.events[eventType]; !ok {
			p = new(int64)
			m.events[eventType] = p
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

func (m *Metrics) EventCount(eventType string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.events[eventType]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// EventCounter returns a subscriber counting published events by type.
func (m *Metrics) EventCounter() events.Publisher {
	return events.Func(func(_ context.Context, ev events.Event) error {
		m.CountEvent(ev.Type)
		return nil
	})
}

// Middleware records request durations by method, route and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.duration(LabelsKey(c.Request().Method, route, strconv.Itoa(status))).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves every metric in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		m.write(&b)
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func (m *Metrics) write(b *strings.Builder) {
	m.mu.RLock()
	durations := make(map[string]*histogram, len(m.durations))
	for k, v := range m.durations {
		durations[k] = v
	}
	counts := make(map[string]int64, len(m.events))
	for k, p := range m.events {
		counts[k] = atomic.LoadInt64(p)
	}
	gauges := append([]GaugeFunc(nil), m.gauges...)
	m.mu.RUnlock()

	const durName = "http_server_request_duration_seconds"
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", durName)
	fmt.Fprintf(b, "# TYPE %s histogram\n", durName)
	for _, key := range sortedKeys(durations) {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			continue
		}
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(b, durName, labels, durations[key])
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

	b.WriteString("# HELP portal_events_total Domain events published by type.\n")
	b.WriteString("# TYPE portal_events_total counter\n")
	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(b, "portal_events_total{type=%q} %d\n", key, counts[key])
	}
	b.WriteByte('\n')

	for _, g := range gauges {
		fmt.Fprintf(b, "# HELP %s %s\n", g.Name, g.Help)
		fmt.Fprintf(b, "# TYPE %s gauge\n", g.Name)
		fmt.Fprintf(b, "%s %d\n\n", g.Name, g.Read())
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
