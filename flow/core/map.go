package core

import (
	"context"
)

// DefaultBufferSize is the default buffer size for internal channels.
// A small buffer reduces goroutine synchronization overhead without
// consuming excessive memory.
const DefaultBufferSize = 64

// TransformConfig holds configuration options for transform operations.
type TransformConfig struct {
	BufferSize int
}

// TransformOption is a functional option for configuring transforms.
type TransformOption func(*TransformConfig)

// WithBufferSize sets the buffer size for the transform's output channel.
// Use 0 for unbuffered (synchronous) operation, which makes the transform
// pull exactly one input per output it hands on.
func WithBufferSize(size int) TransformOption {
	return func(c *TransformConfig) {
		c.BufferSize = size
	}
}

func applyOptions(opts ...TransformOption) TransformConfig {
	cfg := TransformConfig{BufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Mapper defines a function that maps a Result of type IN to a Result of type OUT. It represents a transformation
// that maintains the cardinality of the flow (one input item produces one output item).
// It answers the question: "What is done to each item in the flow?"
type Mapper[IN, OUT any] func(Result[IN]) Result[OUT]

// Map creates a Mapper from a transformation function. Errors and sentinels
// pass through untouched; a panic in mapFunc becomes an ErrPanic error.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return func(res Result[IN]) (out Result[OUT]) {
		switch {
		case res.IsError():
			return Err[OUT](res.Error())
		case res.IsSentinel():
			return Sentinel[OUT](res.Sentinel())
		}

		defer func() {
			if r := recover(); r != nil {
				out = Recover[OUT](r)
			}
		}()

		mapped, err := mapFunc(res.Value())
		if err != nil {
			return Err[OUT](err)
		}
		return Ok(mapped)
	}
}

// Apply transforms a stream using this Mapper with default configuration.
func (m Mapper[IN, OUT]) Apply(s Stream[IN]) Stream[OUT] {
	return m.ApplyWith(s)
}

// ApplyWith transforms a stream using this Mapper with custom options.
func (m Mapper[IN, OUT]) ApplyWith(s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := applyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		out := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(out)
			for res := range s.Emit(ctx) {
				if !Send(ctx, out, m(res)) {
					return
				}
			}
		}()
		return out
	})
}

// FlatMapper defines a function that maps a Result of type IN to a slice of Results of type OUT.
// It represents a transformation that can change the cardinality of the flow (one input item can produce zero or more output items).
// It answers the question: "How are items in the flow reduced or expanded?"
type FlatMapper[IN, OUT any] func(Result[IN]) []Result[OUT]

// FlatMap creates a FlatMapper from a function returning a slice.
func FlatMap[IN, OUT any](flatMapFunc func(IN) ([]OUT, error)) FlatMapper[IN, OUT] {
	return func(res Result[IN]) (outs []Result[OUT]) {
		switch {
		case res.IsError():
			return []Result[OUT]{Err[OUT](res.Error())}
		case res.IsSentinel():
			return []Result[OUT]{Sentinel[OUT](res.Sentinel())}
		}

		defer func() {
			if r := recover(); r != nil {
				outs = []Result[OUT]{Recover[OUT](r)}
			}
		}()

		values, err := flatMapFunc(res.Value())
		if err != nil {
			return []Result[OUT]{Err[OUT](err)}
		}
		outs = make([]Result[OUT], len(values))
		for i, v := range values {
			outs[i] = Ok(v)
		}
		return outs
	}
}

// Apply transforms a stream using this FlatMapper with default configuration.
func (fm FlatMapper[IN, OUT]) Apply(s Stream[IN]) Stream[OUT] {
	return fm.ApplyWith(s)
}

// ApplyWith transforms a stream using this FlatMapper with custom options.
func (fm FlatMapper[IN, OUT]) ApplyWith(s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := applyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		out := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(out)
			for res := range s.Emit(ctx) {
				for _, r := range fm(res) {
					if !Send(ctx, out, r) {
						return
					}
				}
			}
		}()
		return out
	})
}
