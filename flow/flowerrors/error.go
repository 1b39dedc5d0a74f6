// Package flowerrors provides the Retry combinator, its retry policies and
// the error types they report.
package flowerrors

import (
	"errors"
	"fmt"

	"github.com/lguimbarda/deferflow/flow/core"
)

// RetryError is emitted by Retry when its policy gives up on an element.
type RetryError struct {
	// Attempts counts the retries made, not the failed invocations: the
	// target failed Attempts+1 times, and the policy refused on the
	// attempt numbered Attempts+1. Backoff{Limit: n} gives up with n.
	Attempts int
	Cause    error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry: gave up after %d retries: %v", e.Attempts, e.Cause)
}

func (e *RetryError) Unwrap() error {
	return e.Cause
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry forwards it as is and
// ends the stream without consulting its policy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsFatal reports whether err must never be retried: a recovered panic or
// an error marked with Permanent.
func IsFatal(err error) bool {
	var panicErr core.ErrPanic
	if errors.As(err, &panicErr) {
		return true
	}
	var permanent *permanentError
	return errors.As(err, &permanent)
}
