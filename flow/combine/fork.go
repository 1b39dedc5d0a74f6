package combine

import (
	"context"
	"time"

	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/observe"
	"github.com/rs/zerolog"
)

// ForkConfig tunes how Fork feeds its branch. Attach a *ForkConfig with
// core.WithConfig to change the defaults of every Fork emitted under that
// context; explicit ForkOptions still win.
type ForkConfig struct {
	// HighWaterMark is the number of unclaimed values the branch may hold
	// before its feeder pauses. The master stream is never paused.
	HighWaterMark int `mapstructure:"high_water_mark"`
	// ThrottleInterval is how long a paused feeder waits between checks.
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
}

// DefaultForkConfig returns the settings Fork uses when nothing is configured.
func DefaultForkConfig() ForkConfig {
	return ForkConfig{
		HighWaterMark:    64,
		ThrottleInterval: time.Millisecond,
	}
}

// ApplyDefaults fills unset fields from DefaultForkConfig.
func (c *ForkConfig) ApplyDefaults() {
	d := DefaultForkConfig()
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = d.HighWaterMark
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = d.ThrottleInterval
	}
}

type forkSettings struct {
	cfg     ForkConfig
	onError func(error)
	onDone  func()
}

// ForkOption configures a single Fork.
type ForkOption func(*forkSettings)

// WithHighWaterMark overrides ForkConfig.HighWaterMark.
func WithHighWaterMark(n int) ForkOption {
	return func(s *forkSettings) {
		s.cfg.HighWaterMark = n
	}
}

// WithThrottleInterval overrides ForkConfig.ThrottleInterval.
func WithThrottleInterval(d time.Duration) ForkOption {
	return func(s *forkSettings) {
		s.cfg.ThrottleInterval = d
	}
}

// WithBranchErrorHandler is called with every error the branch pipeline
// emits. The branch keeps running; its errors never reach the master stream.
func WithBranchErrorHandler(fn func(error)) ForkOption {
	return func(s *forkSettings) {
		s.onError = fn
	}
}

// WithBranchDone is called once the branch pipeline has finished.
func WithBranchDone(fn func()) ForkOption {
	return func(s *forkSettings) {
		s.onDone = fn
	}
}

func newForkSettings(ctx context.Context, opts []ForkOption) forkSettings {
	s := forkSettings{cfg: DefaultForkConfig()}
	if cfg, ok := core.GetConfig[*ForkConfig](ctx); ok && cfg != nil {
		s.cfg = *cfg
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.cfg.ApplyDefaults()
	return s
}

// Fork passes every source element through unchanged while also feeding
// each value to branch, a side pipeline whose output is drained and
// discarded.
//
// The master never waits on the branch: values it reads are queued for the
// branch and sent downstream straight away. A feeder moves queued values
// into the branch, pausing while the branch holds more than HighWaterMark
// unclaimed values. The branch and its feeder run detached from the
// consumer's context, so the branch receives every value the master read
// and finishes after the master stream has ended.
func Fork[T, U any](branch core.Transformer[T, U], opts ...ForkOption) core.Transformer[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		s := newForkSettings(ctx, opts)
		inst := observe.FromContext(ctx)
		log := observe.Logger(ctx, "fork")
		detached := context.WithoutCancel(ctx)

		backlog := core.NewChannel[T]()
		feed := core.NewChannel[T]()
		go feedBranch(detached, backlog, feed, s.cfg, inst)
		go drainBranch(detached, branch.Apply(feed), s, inst, log)

		out := make(chan core.Result[T])

		go func() {
			// out closes before the backlog, so the branch cannot end
			// ahead of the master.
			defer backlog.Close()
			defer close(out)

			for {
				select {
				case <-ctx.Done():
					return
				case res, ok := <-in:
					if !ok {
						return
					}
					if res.IsValue() {
						backlog.Push(res.Value())
					}
					if !core.Send(ctx, out, res) {
						return
					}
				}
			}
		}()

		return out
	})
}

// feedBranch moves values from backlog into feed until backlog is closed
// and drained, then closes feed.
func feedBranch[T any](ctx context.Context, backlog, feed *core.Channel[T], cfg ForkConfig, inst *observe.Instruments) {
	defer feed.Dispose()

	for {
		v, ok, err := backlog.Next(ctx)
		if err != nil || !ok {
			return
		}
		if !throttle(ctx, feed, cfg, inst) {
			return
		}
		feed.Push(v)
	}
}

// throttle blocks while the branch holds more than the high-water mark of
// unclaimed values. It returns false when ctx ends first.
func throttle[T any](ctx context.Context, feed *core.Channel[T], cfg ForkConfig, inst *observe.Instruments) bool {
	paused := false
	for feed.Active() && feed.Buffered() > cfg.HighWaterMark {
		if !paused {
			paused = true
			inst.ForkThrottled.Add(ctx, 1, observe.Component("fork"))
		}

		timer := time.NewTimer(cfg.ThrottleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return true
}

func drainBranch[U any](ctx context.Context, stream core.Stream[U], s forkSettings, inst *observe.Instruments, log zerolog.Logger) {
	if s.onDone != nil {
		defer s.onDone()
	}

	for res := range stream.Emit(ctx) {
		if !res.IsError() {
			continue
		}
		inst.BranchErrors.Add(ctx, 1, observe.Component("fork"))
		log.Error().Err(res.Error()).Msg("branch pipeline error")
		if s.onError != nil {
			s.onError(res.Error())
		}
	}
	log.Debug().Msg("branch pipeline finished")
}
