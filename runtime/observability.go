package musicapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/theory-cloud/musicapi/pkg/metrics"
)

// Metric names emitted by the wrapper.
const (
	MetricInvocationCount     = "InvocationCount"
	MetricErrorCount          = "ErrorCount"
	MetricUnhandledErrorCount = "UnhandledErrorCount"
	MetricRateLimitExceeded   = "RateLimitExceeded"
	MetricRateLimitStoreError = "RateLimitStoreError"
	MetricEventReceived       = "EventReceived"
	MetricProcessingError     = "ProcessingError"
	MetricDuration            = "Duration"
)

// Metrics accumulates counters for a single invocation.
type Metrics struct {
	mu        sync.Mutex
	namespace string
	service   string
	clock     Clock
	records   []metrics.MetricRecord
}

func newMetrics(namespace, service string, clock Clock) *Metrics {
	return &Metrics{namespace: namespace, service: service, clock: clock}
}

// Add records value under name with the default Count unit.
func (m *Metrics) Add(name string, value float64) {
	m.AddWithUnit(name, value, "")
}

// AddWithUnit records value under name with a CloudWatch unit such as Milliseconds.
func (m *Metrics) AddWithUnit(name string, value float64, unit string) {
	if m == nil || name == "" {
		return
	}
	now := time.Now()
	if m.clock != nil {
		now = m.clock.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, metrics.MetricRecord{
		Namespace: m.namespace,
		Name:      name,
		Value:     value,
		Unit:      unit,
		Timestamp: now,
		Tags:      map[string]string{"Service": m.service},
	})
	m.mu.Unlock()
}

// Totals sums recorded values by name.
func (m *Metrics) Totals() map[string]float64 {
	out := map[string]float64{}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		out[r.Name] += r.Value
	}
	return out
}

func (m *Metrics) flush(ctx context.Context, publisher metrics.Publisher) error {
	if m == nil || publisher == nil {
		return nil
	}
	m.mu.Lock()
	records := m.records
	m.records = nil
	m.mu.Unlock()
	if len(records) == 0 {
		return nil
	}
	return publisher.Publish(ctx, records)
}

// Span is a timed unit of work with string attributes.
type Span struct {
	mu         sync.Mutex
	ID         string
	TraceID    string
	Name       string
	Start      time.Time
	End        time.Time
	attributes map[string]string
}

func newSpan(id, traceID, name string, start time.Time) *Span {
	return &Span{ID: id, TraceID: traceID, Name: name, Start: start, attributes: map[string]string{}}
}

func (s *Span) SetAttribute(key, value string) {
	if s == nil || key == "" {
		return
	}
	s.mu.Lock()
	s.attributes[key] = value
	s.mu.Unlock()
}

// Attributes returns a copy of the span attributes.
func (s *Span) Attributes() map[string]string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.attributes))
	for k, v := range s.attributes {
		out[k] = v
	}
	return out
}

func (s *Span) finish(end time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.End.IsZero() {
		s.End = end
	}
	return s.End.Sub(s.Start)
}

func (s *Span) fields() map[string]any {
	attrs := s.Attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]any{
		"span_id":     s.ID,
		"span_name":   s.Name,
		"duration_ms": s.End.Sub(s.Start).Milliseconds(),
	}
	for _, k := range keys {
		out["span."+k] = attrs[k]
	}
	return out
}
