package combine

import (
	"context"

	"github.com/lguimbarda/deferflow/flow/core"
)

// Triage splits a stream in two. Values for which predicate returns true are
// routed through branch; everything else, errors and sentinels included,
// stays on the master path. The output merges both paths, so ordering is
// only kept within each path.
//
// predicate receives the value and its zero-based index among the source's
// values. A panicking predicate turns that element into an ErrPanic on the
// master path.
func Triage[T any](predicate func(T, int) bool, branch core.Transformer[T, T]) core.Transformer[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		feed := core.NewChannel[T]()
		master := core.NewChannel[core.Result[T]]()

		go func() {
			defer feed.Dispose()
			defer master.Dispose()

			index := 0
			for {
				select {
				case <-ctx.Done():
					return
				case res, ok := <-in:
					if !ok {
						return
					}
					if !res.IsValue() {
						master.Push(res)
						continue
					}

					selected, failure := route(predicate, res.Value(), index)
					index++
					switch {
					case failure != nil:
						master.Push(*failure)
					case selected:
						feed.Push(res.Value())
					default:
						master.Push(res)
					}
				}
			}
		}()

		return Merge(core.Results(master), branch.Apply(feed)).Emit(ctx)
	})
}

func route[T any](predicate func(T, int) bool, value T, index int) (selected bool, failure *core.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res := core.Recover[T](r)
			failure = &res
		}
	}()
	return predicate(value, index), nil
}
