// Package observe wires the combinators to OpenTelemetry metrics and to
// context-carried zerolog loggers.
//
// Both are optional: without instruments in the context every counter is a
// no-op, and without a logger zerolog.Ctx returns a disabled logger.
package observe

import (
	"context"
	"fmt"

	"github.com/lguimbarda/deferflow/flow/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ScopeName is the instrumentation scope used for the module's meters.
const ScopeName = "github.com/lguimbarda/deferflow"

// Instrument names.
const (
	RetryAttempts  = "flow.retry.attempts"
	RetryExhausted = "flow.retry.exhausted"
	BranchErrors   = "flow.branch.errors"
	ForkThrottled  = "flow.fork.throttled"
	StoreEnqueued  = "flow.store.enqueued"
	StoreDequeued  = "flow.store.dequeued"
)

// Instruments holds the counters the combinators report to.
type Instruments struct {
	RetryAttempts  metric.Int64Counter
	RetryExhausted metric.Int64Counter
	BranchErrors   metric.Int64Counter
	ForkThrottled  metric.Int64Counter
	StoreEnqueued  metric.Int64Counter
	StoreDequeued  metric.Int64Counter
}

// NewInstruments creates every counter on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var inst Instruments

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&inst.RetryAttempts, RetryAttempts, "failed attempts handed to a retry policy", "{attempt}"},
		{&inst.RetryExhausted, RetryExhausted, "elements given up on after the retry policy refused", "{element}"},
		{&inst.BranchErrors, BranchErrors, "errors emitted by detached branch pipelines", "{error}"},
		{&inst.ForkThrottled, ForkThrottled, "feeder pauses on a branch channel over its high-water mark", "{pause}"},
		{&inst.StoreEnqueued, StoreEnqueued, "messages persisted by a storage adapter", "{message}"},
		{&inst.StoreDequeued, StoreDequeued, "messages delivered by a storage adapter", "{message}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	return &inst, nil
}

var noopInstruments = func() *Instruments {
	inst, err := NewInstruments(noop.NewMeterProvider().Meter(ScopeName))
	if err != nil {
		panic(err)
	}
	return inst
}()

// WithMeter creates the instruments on meter and attaches them to ctx.
func WithMeter(ctx context.Context, meter metric.Meter) (context.Context, error) {
	inst, err := NewInstruments(meter)
	if err != nil {
		return ctx, err
	}
	return core.WithConfig(ctx, inst), nil
}

// FromContext returns the instruments attached to ctx, or no-op ones.
func FromContext(ctx context.Context) *Instruments {
	return core.ConfigOr(ctx, noopInstruments)
}

// Component tags a measurement with the combinator or adapter that made it.
func Component(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("component", name))
}
