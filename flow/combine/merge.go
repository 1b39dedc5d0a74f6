package combine

import (
	"context"
	"iter"
	"sync"

	"github.com/lguimbarda/deferflow/flow/core"
)

// forward copies every result of s to out. It reports false when ctx ended
// before s was exhausted.
func forward[T any](ctx context.Context, s core.Stream[T], out chan<- core.Result[T]) bool {
	for res := range s.Emit(ctx) {
		if !core.Send(ctx, out, res) {
			return false
		}
	}
	return ctx.Err() == nil
}

// Merge multiplexes streams into one. Each source is read by its own
// goroutine and its results are emitted as they arrive: a source keeps its
// own order, the interleaving across sources is whatever timing produces.
// The merged stream ends once every source has.
func Merge[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T])

		var wg sync.WaitGroup
		for _, s := range streams {
			wg.Go(func() { forward(ctx, s, out) })
		}
		go func() {
			wg.Wait()
			close(out)
		}()

		return out
	})
}

// Concat emits the streams one after the other, starting each source only
// once the previous one is exhausted.
func Concat[T any](streams ...core.Stream[T]) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T])

		go func() {
			defer close(out)
			for _, s := range streams {
				if !forward(ctx, s, out) {
					return
				}
			}
		}()

		return out
	})
}

// Mux is a multiplexer that sources are added to one at a time before it is
// emitted. Emitting it behaves like Merge over the sources added so far.
// The zero value is ready to use.
type Mux[T any] struct {
	mu      sync.Mutex
	streams []core.Stream[T]
}

// Add registers a source. Sources added after Emit are not picked up by
// that emission.
func (m *Mux[T]) Add(stream core.Stream[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, stream)
}

// Len returns the number of registered sources.
func (m *Mux[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *Mux[T]) Emit(ctx context.Context) <-chan core.Result[T] {
	m.mu.Lock()
	streams := append([]core.Stream[T](nil), m.streams...)
	m.mu.Unlock()

	return Merge(streams...).Emit(ctx)
}

func (m *Mux[T]) Collect(ctx context.Context) []core.Result[T] {
	return core.Collect(ctx, m)
}

func (m *Mux[T]) All(ctx context.Context) iter.Seq[core.Result[T]] {
	return core.All(ctx, m)
}
