package core

import (
	"context"
)

// configKey keys a context value by the config's type, so fork, retry and
// store settings can travel in one context without colliding.
type configKey[C any] struct{}

// WithConfig attaches cfg to ctx. Combinators emitted under the returned
// context read it as their defaults; their explicit options still win.
// Attaching another value of the same type replaces it.
//
//	ctx = core.WithConfig(ctx, &combine.ForkConfig{HighWaterMark: 256})
func WithConfig[C any](ctx context.Context, cfg C) context.Context {
	return context.WithValue(ctx, configKey[C]{}, cfg)
}

// GetConfig returns the C attached to ctx. Pointer and value types are
// distinct: a *ForkConfig is not found by GetConfig[ForkConfig].
func GetConfig[C any](ctx context.Context) (C, bool) {
	cfg, ok := ctx.Value(configKey[C]{}).(C)
	return cfg, ok
}

// ConfigOr returns the C attached to ctx, or fallback.
func ConfigOr[C any](ctx context.Context, fallback C) C {
	if cfg, ok := GetConfig[C](ctx); ok {
		return cfg
	}
	return fallback
}
