// Package flow is the user-facing API of deferflow: asynchronous streams
// built on pushable channels, with combinators to fork, triage, retry and
// persist them.
//
// Most users should only need to import this package. The subpackages hold
// the implementations and their configuration types.
package flow

import (
	"context"
	"io"
	"iter"

	"github.com/lguimbarda/deferflow/flow/combine"
	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/flowerrors"
	"github.com/lguimbarda/deferflow/flow/store"
)

// Type aliases for core stream abstractions.
// These allow users to work with the framework without importing core directly.
type (
	// Result represents the outcome of processing an item in the stream.
	// It exists in one of three states: Value, Error, or Sentinel.
	Result[T any] = core.Result[T]

	// Stream represents a flow of data with methods for processing.
	Stream[T any] = core.Stream[T]

	// Transformer transforms a Stream of type IN into a Stream of type OUT.
	Transformer[IN, OUT any] = core.Transformer[IN, OUT]

	// Emitter produces a channel of Results and implements Stream.
	Emitter[T any] = core.Emitter[T]

	// Transmitter transforms one channel of Results into another and implements Transformer.
	Transmitter[IN, OUT any] = core.Transmitter[IN, OUT]

	// Mapper transforms individual items (1:1 cardinality) and implements Transformer.
	Mapper[IN, OUT any] = core.Mapper[IN, OUT]

	// FlatMapper transforms individual items (1:N cardinality) and implements Transformer.
	FlatMapper[IN, OUT any] = core.FlatMapper[IN, OUT]

	// Channel is a pushable, unbounded queue that is also a Stream.
	Channel[T any] = core.Channel[T]

	// Mux merges the sources added to it.
	Mux[T any] = combine.Mux[T]

	// RetryError reports an element Retry gave up on.
	RetryError = flowerrors.RetryError
)

// ErrEndOfStream is the sentinel error indicating normal stream termination.
var ErrEndOfStream = core.ErrEndOfStream

// Result constructors - wrappers around core functions.

// Ok creates a successful Result containing the given value.
func Ok[T any](value T) Result[T] {
	return core.Ok(value)
}

// Err creates an error Result for recoverable processing failures.
func Err[T any](err error) Result[T] {
	return core.Err[T](err)
}

// Sentinel creates a sentinel Result for stream control signals.
func Sentinel[T any](err error) Result[T] {
	return core.Sentinel[T](err)
}

// EndOfStream creates a sentinel indicating normal stream termination.
func EndOfStream[T any]() Result[T] {
	return core.EndOfStream[T]()
}

// Channels.

// NewChannel creates an open, empty Channel.
func NewChannel[T any](opts ...core.ChannelOption) *Channel[T] {
	return core.NewChannel[T](opts...)
}

// Mapper/FlatMapper constructors.

// Map creates a Mapper from a simple transformation function.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return core.Map(mapFunc)
}

// FlatMap creates a FlatMapper from a function returning a slice.
func FlatMap[IN, OUT any](flatMapFunc func(IN) ([]OUT, error)) FlatMapper[IN, OUT] {
	return core.FlatMap(flatMapFunc)
}

// Combinators.

// Merge interleaves several streams into one.
func Merge[T any](streams ...Stream[T]) Stream[T] {
	return combine.Merge(streams...)
}

// Fork passes the stream through unchanged while feeding a side pipeline.
func Fork[T, U any](branch Transformer[T, U], opts ...combine.ForkOption) Transformer[T, T] {
	return combine.Fork(branch, opts...)
}

// Triage routes the values matching predicate through branch.
func Triage[T any](predicate func(T, int) bool, branch Transformer[T, T]) Transformer[T, T] {
	return combine.Triage(predicate, branch)
}

// Retry reruns target on failed elements according to a retry policy.
func Retry[IN, OUT any](target Transformer[IN, OUT], opts ...flowerrors.RetryOption) Transformer[IN, OUT] {
	return flowerrors.Retry(target, opts...)
}

// DefaultBackoff is the retry policy Retry uses when none is configured.
func DefaultBackoff() *flowerrors.Backoff {
	return flowerrors.DefaultBackoff()
}

// Persisted routes a stream through durable storage.
func Persisted[M any, S io.Closer](adapter store.Adapter[M, S]) Transformer[M, M] {
	return store.Persisted(adapter)
}

// Terminal operations.

// Slice collects all stream values into a slice.
func Slice[T any](ctx context.Context, in Stream[T]) ([]T, error) {
	return core.Slice(ctx, in)
}

// First returns the first value from the stream.
func First[T any](ctx context.Context, in Stream[T]) (T, error) {
	return core.First(ctx, in)
}

// Run executes the stream for side effects only.
func Run[T any](ctx context.Context, in Stream[T]) error {
	return core.Run(ctx, in)
}

// Collect gathers all Results (including errors) into a slice.
func Collect[T any](ctx context.Context, stream Stream[T]) []Result[T] {
	return core.Collect(ctx, stream)
}

// All returns an iterator over all Results in the stream.
func All[T any](ctx context.Context, stream Stream[T]) iter.Seq[Result[T]] {
	return core.All(ctx, stream)
}

// Emitter/Transmitter constructors.

// Emit creates an Emitter from a channel-producing function.
func Emit[T any](emitter func(context.Context) <-chan Result[T]) Emitter[T] {
	return core.Emit(emitter)
}

// Transmit creates a Transmitter from a channel transformation function.
func Transmit[IN, OUT any](transmitter func(context.Context, <-chan Result[IN]) <-chan Result[OUT]) Transmitter[IN, OUT] {
	return core.Transmit(transmitter)
}
