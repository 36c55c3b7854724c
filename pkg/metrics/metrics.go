// Package metrics publishes per-invocation counters.
//
// Handlers record into a runtime recorder; at the end of an invocation the recorder hands
// its records to a Publisher. CloudWatch is the production backend.
package metrics

import (
	"context"
	"sync"
	"time"
)

// MetricRecord is a single counter observation.
type MetricRecord struct {
	Namespace string
	Name      string
	Value     float64
	Unit      string
	Timestamp time.Time
	Tags      map[string]string
}

// Publisher sends a batch of records to a metrics backend.
type Publisher interface {
	Publish(ctx context.Context, records []MetricRecord) error
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []MetricRecord) error { return nil }

// MemoryPublisher keeps published records for inspection in tests and local runs.
type MemoryPublisher struct {
	mu      sync.Mutex
	records []MetricRecord
	err     error
}

var _ Publisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes subsequent Publish calls return err.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *MemoryPublisher) Publish(_ context.Context, records []MetricRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, records...)
	return nil
}

// Records returns a copy of everything published so far.
func (p *MemoryPublisher) Records() []MetricRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MetricRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Sum totals the values published under name.
func (p *MemoryPublisher) Sum(name string) float64 {
	var total float64
	for _, r := range p.Records() {
		if r.Name == name {
			total += r.Value
		}
	}
	return total
}
