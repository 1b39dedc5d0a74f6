// Package core holds the pieces every deferflow combinator is built from:
// the pushable Channel, lazily emitted Streams of Results, Transformers
// between them, and the terminals that drain a stream.
//
// NOTE: this package should have no dependencies outside the standard
// library, including other flow packages.
package core

import (
	"context"
	"iter"
)

// Stream is a lazy, re-emittable sequence of Results. Nothing runs until
// Emit is called; each call starts a fresh emission bound to ctx, and the
// returned channel closes when the emission ends or ctx is cancelled.
// A Channel, a Mux and every combinator output are Streams.
type Stream[OUT any] interface {
	Emit(context.Context) <-chan Result[OUT]

	Collect(context.Context) []Result[OUT]
	All(context.Context) iter.Seq[Result[OUT]]
}

// Collect emits stream and gathers every Result, sentinels included.
func Collect[OUT any](ctx context.Context, stream Stream[OUT]) []Result[OUT] {
	var results []Result[OUT]
	for res := range stream.Emit(ctx) {
		results = append(results, res)
	}
	return results
}

// All returns an iterator over the stream's results. Breaking out of the
// loop cancels the context handed to Emit, which releases upstream stages.
func All[OUT any](ctx context.Context, stream Stream[OUT]) iter.Seq[Result[OUT]] {
	return func(yield func(Result[OUT]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for res := range stream.Emit(ctx) {
			if !yield(res) {
				return
			}
		}
	}
}

// Transformer wraps a Stream into another. Apply only describes the new
// stream; work starts when the result is emitted. Fork, Triage, Retry and
// Persisted are Transformers, so they nest inside one another.
type Transformer[IN, OUT any] interface {
	Apply(Stream[IN]) Stream[OUT]
}
