package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// modulePrefix marks frames that belong to this module. They are dropped
// from panic stacks so the trace starts at the callback that panicked.
const modulePrefix = "github.com/lguimbarda/deferflow/flow/"

// ErrPanic is the error a recovered panic becomes. A panicking mapper,
// predicate or producer does not crash the stream; its panic travels
// downstream as an error Result carrying this value. Retry treats it as
// fatal and never re-runs the element.
type ErrPanic struct {
	Value any
	Stack string
}

func (e ErrPanic) Error() string {
	if e.Stack == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
}

// NewPanicError wraps a recovered value. Call it from the deferred function
// that recovered, so the captured stack starts at the panic site.
func NewPanicError(recovered any) ErrPanic {
	// runtime.Callers, captureStack, NewPanicError, the deferred func.
	return ErrPanic{Value: recovered, Stack: cleanStack(captureStack(4))}
}

func captureStack(skip int) string {
	pcs := make([]uintptr, 32)
	pcs = pcs[:runtime.Callers(skip, pcs)]
	if len(pcs) == 0 {
		return ""
	}

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs)
	for more := true; more; {
		var f runtime.Frame
		f, more = frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

// cleanStack removes this module's frames from a trace in the runtime's
// "function\n\tfile:line" layout. Each frame is two lines; a dropped
// function line takes its location line with it.
func cleanStack(stack string) string {
	var kept []string
	dropLocation := false
	for line := range strings.SplitSeq(stack, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
		case strings.HasPrefix(line, "\t"):
			if !dropLocation {
				kept = append(kept, line)
			}
		default:
			dropLocation = strings.Contains(line, modulePrefix)
			if !dropLocation {
				kept = append(kept, line)
			}
		}
	}
	return strings.Join(kept, "\n")
}

// Result is one element travelling through a stream, a pipe between a
// Channel, the combinators and the terminals. It is one of:
//   - a value, produced by a source or a mapper;
//   - an error, a failed element that does not end the stream (retry
//     decides whether to run it again, fork hands it to the master only);
//   - a sentinel, an in-band control marker. ErrEndOfStream is the one
//     the terminals act on.
type Result[OUT any] struct {
	value      OUT
	err        error
	isSentinel bool
}

// NewResult builds a Result from its parts. It exists for stages that
// forward an element of one type as another; Ok, Err and Sentinel cover
// the rest.
func NewResult[OUT any](value OUT, err error, isSentinel bool) Result[OUT] {
	return Result[OUT]{value: value, err: err, isSentinel: isSentinel}
}

// Ok wraps a value.
func Ok[OUT any](value OUT) Result[OUT] {
	return Result[OUT]{value: value}
}

// Err wraps a failed element. Downstream stages pass it along untouched.
func Err[OUT any](err error) Result[OUT] {
	return Result[OUT]{err: err}
}

// Sentinel builds a control marker. err describes it and may be nil.
func Sentinel[OUT any](err error) Result[OUT] {
	return Result[OUT]{err: err, isSentinel: true}
}

// ErrEndOfStream marks an in-band end of stream. Terminals stop reading
// when they see it, even if the source channel stays open.
var ErrEndOfStream = errors.New("end of stream")

// EndOfStream returns the end-of-stream sentinel.
func EndOfStream[OUT any]() Result[OUT] {
	return Sentinel[OUT](ErrEndOfStream)
}

func (r Result[OUT]) IsValue() bool {
	return r.err == nil && !r.isSentinel
}

func (r Result[OUT]) IsSentinel() bool {
	return r.isSentinel
}

func (r Result[OUT]) IsError() bool {
	return r.err != nil && !r.isSentinel
}

// IsEndOfStream reports whether r is, or wraps, the ErrEndOfStream sentinel.
func (r Result[OUT]) IsEndOfStream() bool {
	return r.isSentinel && errors.Is(r.err, ErrEndOfStream)
}

// Value is the wrapped value, or the zero value for errors and sentinels.
func (r Result[OUT]) Value() OUT {
	return r.value
}

// Error is the element's failure. Sentinels report nil here; their
// description is in Sentinel.
func (r Result[OUT]) Error() error {
	if r.isSentinel {
		return nil
	}
	return r.err
}

// Sentinel is the sentinel's description, nil for values and errors.
func (r Result[OUT]) Sentinel() error {
	if r.isSentinel {
		return r.err
	}
	return nil
}

// Unwrap returns the value and the error or sentinel description as stored.
func (r Result[OUT]) Unwrap() (OUT, error) {
	return r.value, r.err
}

func (r Result[OUT]) String() string {
	if r.isSentinel {
		return fmt.Sprintf("Sentinel(%v)", r.err)
	}
	if r.err != nil {
		return fmt.Sprintf("Err(%v)", r.err)
	}
	return fmt.Sprintf("Ok(%v)", r.value)
}

// Recover turns a value from recover() into an ErrPanic error Result.
// Call it directly in the deferred function.
func Recover[OUT any](recovered any) Result[OUT] {
	return Err[OUT](NewPanicError(recovered))
}
