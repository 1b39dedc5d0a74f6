package core

import (
	"context"
	"errors"
)

// ErrEmptyStream is returned by First when the stream ends without a value.
var ErrEmptyStream = errors.New("stream is empty")

// Terminals consume a stream and cancel it once they return, so upstream
// stages and the channels feeding them are released on every path.
//
// Sentinels are control signals, not data: terminals skip them, and an
// ErrEndOfStream sentinel ends consumption as if the stream had closed.

// consume feeds every value of in to fn until fn returns false, the stream
// ends, or an error Result arrives.
func consume[OUT any](ctx context.Context, in Stream[OUT], fn func(OUT) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range in.Emit(ctx) {
		switch {
		case res.IsError():
			return res.Error()
		case res.IsSentinel():
			if res.IsEndOfStream() {
				return nil
			}
		default:
			if !fn(res.Value()) {
				return nil
			}
		}
	}
	return nil
}

// Slice collects the values of in. It stops at the first error.
func Slice[OUT any](ctx context.Context, in Stream[OUT]) ([]OUT, error) {
	var values []OUT
	err := consume(ctx, in, func(v OUT) bool {
		values = append(values, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// First returns the first value of in and stops the stream.
func First[OUT any](ctx context.Context, in Stream[OUT]) (OUT, error) {
	var first OUT
	found := false
	err := consume(ctx, in, func(v OUT) bool {
		first, found = v, true
		return false
	})
	switch {
	case err != nil:
		return *new(OUT), err
	case !found:
		return first, ErrEmptyStream
	}
	return first, nil
}

// Run drains in for its side effects.
func Run[OUT any](ctx context.Context, in Stream[OUT]) error {
	return consume(ctx, in, func(OUT) bool { return true })
}
