package flowerrors

import (
	"context"

	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/observe"
)

type retrySettings struct {
	policy Policy
}

// RetryOption configures Retry.
type RetryOption func(*retrySettings)

// WithPolicy sets the policy consulted after every failed attempt.
func WithPolicy(p Policy) RetryOption {
	return func(s *retrySettings) {
		s.policy = p
	}
}

func resolvePolicy(ctx context.Context, opts []RetryOption) Policy {
	var s retrySettings
	for _, opt := range opts {
		opt(&s)
	}
	if s.policy != nil {
		return s.policy
	}
	if cfg, ok := core.GetConfig[*BackoffConfig](ctx); ok && cfg != nil {
		if b, err := NewBackoff(*cfg); err == nil {
			return b
		}
	}
	return DefaultBackoff()
}

// Retry runs every source value through target, which must produce exactly
// one result per value. When target reports an error, the policy decides
// whether to try again; each new attempt gets a fresh instance of target.
//
// Successful results are forwarded and reset the attempt count. Once the
// policy gives up, Retry emits a *RetryError and ends the stream. Recovered
// panics and errors marked Permanent end the stream without a retry. Error
// results from the source itself pass through untouched.
//
// Without WithPolicy, the policy is built from a *BackoffConfig in the
// context, falling back to DefaultBackoff.
func Retry[IN, OUT any](target core.Transformer[IN, OUT], opts ...RetryOption) core.Transformer[IN, OUT] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[IN]) <-chan core.Result[OUT] {
		r := &retrier[IN, OUT]{
			target: target,
			policy: resolvePolicy(ctx, opts),
			inst:   observe.FromContext(ctx),
		}
		out := make(chan core.Result[OUT])

		go func() {
			defer close(out)
			r.run(ctx, in, out)
		}()

		return out
	})
}

type retrier[IN, OUT any] struct {
	target core.Transformer[IN, OUT]
	policy Policy
	inst   *observe.Instruments
}

// attempt is one instance of the target, fed through its own channel.
type attempt[IN, OUT any] struct {
	feed   *core.Channel[IN]
	out    <-chan core.Result[OUT]
	cancel context.CancelFunc
}

func (r *retrier[IN, OUT]) start(ctx context.Context) *attempt[IN, OUT] {
	actx, cancel := context.WithCancel(ctx)
	feed := core.NewChannel[IN]()
	return &attempt[IN, OUT]{
		feed:   feed,
		out:    r.target.Apply(feed).Emit(actx),
		cancel: cancel,
	}
}

func (a *attempt[IN, OUT]) stop() {
	a.feed.Dispose()
	a.cancel()
}

func (r *retrier[IN, OUT]) run(ctx context.Context, in <-chan core.Result[IN], out chan<- core.Result[OUT]) {
	log := observe.Logger(ctx, "retry")

	cur := r.start(ctx)
	defer func() { cur.stop() }()

	failures := 0
	for {
		var res core.Result[IN]
		var ok bool
		select {
		case <-ctx.Done():
			return
		case res, ok = <-in:
			if !ok {
				return
			}
		}

		if !res.IsValue() {
			_, err := res.Unwrap()
			if !core.Send(ctx, out, core.NewResult(*new(OUT), err, res.IsSentinel())) {
				return
			}
			continue
		}

		value := res.Value()
	element:
		for {
			cur.feed.Push(value)

			var got core.Result[OUT]
			select {
			case <-ctx.Done():
				return
			case got, ok = <-cur.out:
			}

			switch {
			case !ok:
				log.Debug().Msg("target ended without a result, dropping element")
				cur.stop()
				cur = r.start(ctx)
				break element

			case !got.IsError():
				failures = 0
				if rs, ok := r.policy.(Resetter); ok {
					rs.Reset()
				}
				if !core.Send(ctx, out, got) {
					return
				}
				break element

			case IsFatal(got.Error()):
				core.Send(ctx, out, got)
				return
			}

			err := got.Error()
			failures++
			r.inst.RetryAttempts.Add(ctx, 1, observe.Component("retry"))
			log.Debug().Err(err).Int("attempt", failures).Msg("attempt failed")

			if !r.policy.Retry(ctx, failures, err, value) {
				if ctx.Err() != nil {
					return
				}
				r.inst.RetryExhausted.Add(ctx, 1, observe.Component("retry"))
				log.Warn().Err(err).Int("attempts", failures-1).Msg("giving up")
				core.Send(ctx, out, core.Err[OUT](&RetryError{Attempts: failures - 1, Cause: err}))
				return
			}

			cur.stop()
			cur = r.start(ctx)
		}
	}
}
