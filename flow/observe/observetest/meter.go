// Package observetest provides a recording OpenTelemetry meter for tests.
package observetest

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Meter records the totals added to its Int64 counters. Every other
// instrument is a no-op.
type Meter struct {
	noop.Meter

	mu     sync.Mutex
	totals map[string]int64
}

func NewMeter() *Meter {
	return &Meter{totals: make(map[string]int64)}
}

func (m *Meter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return &counter{name: name, meter: m}, nil
}

// Total returns the sum of everything added to the named counter.
func (m *Meter) Total(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

type counter struct {
	noop.Int64Counter
	name  string
	meter *Meter
}

func (c *counter) Add(_ context.Context, incr int64, _ ...metric.AddOption) {
	c.meter.mu.Lock()
	defer c.meter.mu.Unlock()
	c.meter.totals[c.name] += incr
}
