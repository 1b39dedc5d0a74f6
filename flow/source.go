package flow

import (
	"context"
	"iter"
	"slices"

	"github.com/lguimbarda/deferflow/flow/core"
)

// sliceBuffer bounds the channel FromSlice allocates. Slices that fit are
// emitted without a goroutine.
const sliceBuffer = 512

// FromSlice emits the items of a slice in order.
func FromSlice[T any](items []T) Stream[T] {
	if len(items) > sliceBuffer {
		return FromIter(slices.Values(items))
	}
	return Emit(func(context.Context) <-chan Result[T] {
		out := make(chan Result[T], len(items))
		for _, item := range items {
			out <- Ok(item)
		}
		close(out)
		return out
	})
}

// FromIter emits the values of seq in order, stopping the iteration when
// the consumer stops.
func FromIter[T any](seq iter.Seq[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T], core.DefaultBufferSize)
		go func() {
			defer close(out)
			for item := range seq {
				if !core.Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

// FromChannel emits the values received from ch until it is closed. The
// caller owns ch and is responsible for closing it.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok || !core.Send(ctx, out, Ok(item)) {
						return
					}
				}
			}
		}()
		return out
	})
}

// just emits a single result.
func just[T any](res Result[T]) Stream[T] {
	return Emit(func(context.Context) <-chan Result[T] {
		out := make(chan Result[T], 1)
		out <- res
		close(out)
		return out
	})
}

// Empty ends without emitting anything.
func Empty[T any]() Stream[T] {
	return FromSlice[T](nil)
}

// Once emits value and ends.
func Once[T any](value T) Stream[T] {
	return just(Ok(value))
}

// FromError emits err as an error Result and ends.
func FromError[T any](err error) Stream[T] {
	return just(Err[T](err))
}

// Never emits nothing and only ends when the consumer's context does.
func Never[T any]() Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			<-ctx.Done()
		}()
		return out
	})
}

// Defer calls factory on every emission, so each consumer gets a fresh
// stream.
func Defer[T any](factory func() Stream[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		return factory().Emit(ctx)
	})
}

// Generate runs produce in its own goroutine each time the stream is
// consumed. Pushed values are buffered without limit, so produce never
// blocks on a slow consumer. A non-nil error returned by produce is emitted
// after the values pushed before it.
//
// push reports false once the consumer has stopped; produce should return
// then. ctx is the consumer's context.
func Generate[T any](produce func(ctx context.Context, push func(T) bool) error) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		ch := core.NewChannel[Result[T]]()
		push := func(v T) bool {
			ch.Push(Ok(v))
			return ch.Active()
		}

		go func() {
			defer ch.Close()
			defer func() {
				if r := recover(); r != nil {
					ch.Push(core.Recover[T](r))
				}
			}()
			if err := produce(ctx, push); err != nil {
				ch.Push(Err[T](err))
			}
		}()

		return core.Results(ch).Emit(ctx)
	})
}
