// Package store makes a stream durable: values are written to storage as
// they arrive and read back in order, so a consumer that restarts picks up
// the values it never confirmed.
//
// The storage itself is pluggable through Adapter; the sqlite and badger
// subpackages provide ready-made ones.
package store

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/observe"
)

// Adapter persists and replays the values of a stream.
//
// Initialize is called once per emission of the stream and returns the
// handle every other call receives. Dequeue blocks until a message is
// available; returning it confirms the message handed out by the previous
// Dequeue on the same handle. Once Return has been called and no message is
// left, Dequeue reports ok == false. The handle is closed when the stream
// ends.
type Adapter[M any, S io.Closer] interface {
	Initialize(ctx context.Context) (S, error)
	Enqueue(ctx context.Context, storage S, message M) error
	Dequeue(ctx context.Context, storage S) (message M, ok bool, err error)
	Return(ctx context.Context, storage S) error
}

// Message is the envelope adapters store around every value.
type Message[M any] struct {
	ID        string     `json:"id" msgpack:"id"`
	CreatedAt time.Time  `json:"created_at" msgpack:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" msgpack:"deleted_at,omitempty"`
	Content   M          `json:"content" msgpack:"content"`
}

// Identifier is implemented by values that carry their own message id.
// Enqueuing two values with the same id replaces the stored content.
type Identifier interface {
	MessageID() string
}

// MessageID returns the id v should be stored under: its own id when it
// implements Identifier with a non-blank one, otherwise a new UUIDv7, which
// sorts by creation time.
func MessageID(v any) string {
	if ider, ok := v.(Identifier); ok {
		if id := strings.TrimSpace(ider.MessageID()); id != "" {
			return id
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Config tunes the bundled adapters.
type Config struct {
	// PollInterval is how long Dequeue waits before looking again when the
	// storage is empty.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DefaultPollInterval is used when Config.PollInterval is unset.
const DefaultPollInterval = 10 * time.Millisecond

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{PollInterval: DefaultPollInterval}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// ConfigFrom returns the *Config attached to ctx, or DefaultConfig.
func ConfigFrom(ctx context.Context) Config {
	cfg := DefaultConfig()
	if c, ok := core.GetConfig[*Config](ctx); ok && c != nil {
		cfg = *c
		cfg.ApplyDefaults()
	}
	return cfg
}

// Wait sleeps for d or until ctx ends, reporting whether the full delay
// elapsed. Adapters use it between polls.
func Wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Persisted routes a stream through durable storage. Every source value is
// enqueued by a background feeder while the output replays the storage in
// order; when the source ends the adapter's Return lets the output finish
// once the storage is drained.
//
// Enqueue failures become error Results. Error Results from the source are
// passed through without being stored. The storage handle is closed on every
// exit path.
func Persisted[M any, S io.Closer](adapter Adapter[M, S]) core.Transformer[M, M] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[M]) <-chan core.Result[M] {
		out := make(chan core.Result[M])

		go func() {
			defer close(out)

			log := observe.Logger(ctx, "store")
			inst := observe.FromContext(ctx)

			storage, err := adapter.Initialize(ctx)
			if err != nil {
				core.Send(ctx, out, core.Err[M](err))
				return
			}
			defer func() {
				if err := storage.Close(); err != nil {
					log.Error().Err(err).Msg("close storage")
				}
			}()

			var wg sync.WaitGroup
			defer wg.Wait()

			fctx, cancel := context.WithCancel(ctx)
			defer cancel()

			wg.Add(1)
			go func() {
				defer wg.Done()
				feed(fctx, adapter, storage, in, out, inst)
				if err := adapter.Return(context.WithoutCancel(ctx), storage); err != nil {
					log.Error().Err(err).Msg("return storage")
				}
			}()

			for {
				msg, ok, err := adapter.Dequeue(ctx, storage)
				if err != nil {
					if ctx.Err() == nil {
						core.Send(ctx, out, core.Err[M](err))
					}
					return
				}
				if !ok {
					return
				}
				inst.StoreDequeued.Add(ctx, 1, observe.Component("store"))
				if !core.Send(ctx, out, core.Ok(msg)) {
					return
				}
			}
		}()

		return out
	})
}

func feed[M any, S io.Closer](ctx context.Context, adapter Adapter[M, S], storage S, in <-chan core.Result[M], out chan<- core.Result[M], inst *observe.Instruments) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-in:
			if !ok {
				return
			}
			if !res.IsValue() {
				if !core.Send(ctx, out, res) {
					return
				}
				continue
			}
			if err := adapter.Enqueue(ctx, storage, res.Value()); err != nil {
				if !core.Send(ctx, out, core.Err[M](err)) {
					return
				}
				continue
			}
			inst.StoreEnqueued.Add(ctx, 1, observe.Component("store"))
		}
	}
}
