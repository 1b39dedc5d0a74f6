package core

import (
	"context"
	"iter"
	"sync"
)

// ChannelOption configures a Channel created by NewChannel.
type ChannelOption func(*channelConfig)

type channelConfig struct {
	dispose func()
}

// WithDispose registers a cleanup function run by Dispose after the
// channel has been closed. It runs at most once.
func WithDispose(fn func()) ChannelOption {
	return func(c *channelConfig) {
		c.dispose = fn
	}
}

// entry is a pushed value that no consumer has claimed yet.
// A non-nil ready channel marks a value that is still being computed.
type entry[T any] struct {
	value T
	ready <-chan T
}

// delivery is handed to exactly one waiting consumer: either an entry
// or the close signal carrying the terminal value.
type delivery[T any] struct {
	entry    entry[T]
	closed   bool
	terminal T
}

// Channel is an unbounded, single-producer, multi-consumer queue.
//
// Pushed values go straight to the oldest waiting consumer or are buffered
// until one arrives, so the buffer and the waiter queue are never both
// non-empty. Both ends are FIFO: values are delivered in push order and
// concurrent Next calls are served in call order.
//
// Return closes the channel. The first call fixes the terminal value and
// releases every waiting consumer; later pushes are dropped. Values buffered
// before the close are still handed out, after which every read reports the
// terminal value.
//
// A Channel is also a Stream: emitting it pumps values until the channel
// closes, and closes the channel when the consumer's context ends.
type Channel[T any] struct {
	mu       sync.Mutex
	buffered []entry[T]
	waiting  []chan delivery[T]
	closed   bool
	terminal T

	dispose  func()
	disposed sync.Once
}

// NewChannel creates an open, empty Channel.
func NewChannel[T any](opts ...ChannelOption) *Channel[T] {
	var cfg channelConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel[T]{dispose: cfg.dispose}
}

// Push hands value to the oldest waiting consumer, or buffers it.
// It is a no-op once the channel is closed.
func (c *Channel[T]) Push(value T) {
	c.push(entry[T]{value: value})
}

// PushFunc pushes a value that is still being computed. fn runs in its own
// goroutine; consumers receive the result in push order regardless of when
// fn returns.
func (c *Channel[T]) PushFunc(fn func() T) {
	if !c.Active() {
		return
	}
	ready := make(chan T, 1)
	go func() {
		ready <- fn()
	}()
	c.push(entry[T]{ready: ready})
}

func (c *Channel[T]) push(e entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if len(c.waiting) > 0 {
		c.popWaiter() <- delivery[T]{entry: e}
		return
	}
	c.buffered = append(c.buffered, e)
}

// popWaiter removes the oldest waiter. Callers must hold c.mu and have
// checked that a waiter exists. Waiter channels have capacity one and
// receive exactly one delivery, so sending on the result never blocks.
func (c *Channel[T]) popWaiter() chan delivery[T] {
	w := c.waiting[0]
	c.waiting[0] = nil
	c.waiting = c.waiting[1:]
	return w
}

// Next returns the next value. ok is false once the channel is closed, in
// which case value is the terminal value. If ctx ends before a value is
// available, Next returns ctx.Err() and the channel is left untouched.
func (c *Channel[T]) Next(ctx context.Context) (value T, ok bool, err error) {
	c.mu.Lock()
	if len(c.buffered) > 0 {
		e := c.buffered[0]
		c.buffered[0] = entry[T]{}
		c.buffered = c.buffered[1:]
		c.mu.Unlock()
		return c.resolve(ctx, e)
	}
	if c.closed {
		terminal := c.terminal
		c.mu.Unlock()
		return terminal, false, nil
	}
	w := make(chan delivery[T], 1)
	c.waiting = append(c.waiting, w)
	c.mu.Unlock()

	select {
	case d := <-w:
		if d.closed {
			return d.terminal, false, nil
		}
		return c.resolve(ctx, d.entry)
	case <-ctx.Done():
		if !c.cancelWait(w) {
			// A push or close raced the cancellation and already
			// satisfied this waiter: pass the value on.
			if d := <-w; !d.closed {
				c.requeue(d.entry)
			}
		}
		var zero T
		return zero, false, ctx.Err()
	}
}

// resolve waits for a pending entry to finish computing.
func (c *Channel[T]) resolve(ctx context.Context, e entry[T]) (T, bool, error) {
	if e.ready == nil {
		return e.value, true, nil
	}
	select {
	case v := <-e.ready:
		return v, true, nil
	case <-ctx.Done():
		c.requeue(e)
		var zero T
		return zero, false, ctx.Err()
	}
}

// cancelWait removes w from the waiter queue. It reports false when w is
// no longer queued because a delivery was already made to it.
func (c *Channel[T]) cancelWait(w chan delivery[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, queued := range c.waiting {
		if queued == w {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// requeue puts an entry claimed by a consumer that gave up back at the
// front of the channel.
func (c *Channel[T]) requeue(e entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiting) > 0 {
		c.popWaiter() <- delivery[T]{entry: e}
		return
	}
	c.buffered = append([]entry[T]{e}, c.buffered...)
}

// Return closes the channel with a terminal value and returns the terminal
// value in effect. Only the first call sets it; later calls are no-ops.
func (c *Channel[T]) Return(value T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.terminal = value
		for _, w := range c.waiting {
			w <- delivery[T]{closed: true, terminal: value}
		}
		c.waiting = nil
	}
	return c.terminal
}

// Close closes the channel with the zero terminal value.
func (c *Channel[T]) Close() error {
	var zero T
	c.Return(zero)
	return nil
}

// Dispose closes the channel and runs the WithDispose cleanup once.
// Owners defer it so every exit path releases the channel.
func (c *Channel[T]) Dispose() {
	c.Close()
	c.disposed.Do(func() {
		if c.dispose != nil {
			c.dispose()
		}
	})
}

// Active reports whether the channel is still open.
func (c *Channel[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Buffered returns the number of pushed values no consumer has claimed.
// It is advisory: the count may change as soon as it is read.
func (c *Channel[T]) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffered)
}

// Waiting returns the number of consumers blocked in Next. Advisory.
func (c *Channel[T]) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}

func (c *Channel[T]) Emit(ctx context.Context) <-chan Result[T] {
	return pump(ctx, c, Ok[T])
}

func (c *Channel[T]) Collect(ctx context.Context) []Result[T] {
	return Collect(ctx, c)
}

func (c *Channel[T]) All(ctx context.Context) iter.Seq[Result[T]] {
	return All(ctx, c)
}

// Results exposes a channel of Results as a Stream, emitting each Result
// as-is instead of wrapping it in another Ok.
func Results[T any](c *Channel[Result[T]]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		return pump(ctx, c, func(res Result[T]) Result[T] { return res })
	})
}

// pump drains c into a result channel until c closes. When the consumer
// stops (ctx ends) the channel is closed so its producer can stop too.
func pump[T, OUT any](ctx context.Context, c *Channel[T], wrap func(T) Result[OUT]) <-chan Result[OUT] {
	out := make(chan Result[OUT])

	go func() {
		defer close(out)

		for {
			v, ok, err := c.Next(ctx)
			if err != nil {
				c.Close()
				return
			}
			if !ok {
				return
			}
			if !Send(ctx, out, wrap(v)) {
				c.Close()
				return
			}
		}
	}()

	return out
}
