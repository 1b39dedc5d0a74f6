package benchmarks

import (
	"testing"

	"github.com/ahmetb/go-linq/v3"
	"github.com/destel/rill"
	"github.com/lguimbarda/deferflow/flow"
	"github.com/samber/lo"
)

// Squaring only the even values, leaving the odd ones untouched.

func BenchmarkTriage_Deferflow(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		triage := flow.Triage(func(x int, _ int) bool { return isEven(x) }, flow.Transformer[int, int](flow.Map(squareWithErr)))
		for i := 0; i < b.N; i++ {
			_, _ = flow.Slice(ctx, triage.Apply(flow.FromSlice(data)))
		}
	})
}

func BenchmarkTriage_Rill(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			mapped := rill.Map(rill.FromSlice(data, nil), 1, func(x int) (int, error) {
				if isEven(x) {
					return square(x), nil
				}
				return x, nil
			})
			_, _ = rill.ToSlice(mapped)
		}
	})
}

func BenchmarkTriage_Lo(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			even := lo.Filter(data, func(x int, _ int) bool { return isEven(x) })
			odd := lo.Filter(data, func(x int, _ int) bool { return !isEven(x) })
			_ = append(lo.Map(even, func(x int, _ int) int { return square(x) }), odd...)
		}
	})
}

func BenchmarkTriage_GoLinq(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			var out []int
			src := linq.From(data)
			src.WhereT(isEven).SelectT(square).Concat(src.WhereT(func(x int) bool { return !isEven(x) })).ToSlice(&out)
		}
	})
}

func BenchmarkFork_Deferflow(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		fork := flow.Fork[int, int](flow.Map(squareWithErr))
		for i := 0; i < b.N; i++ {
			_, _ = flow.Slice(ctx, fork.Apply(flow.FromSlice(data)))
		}
	})
}

func BenchmarkMerge_Deferflow(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		half := len(data) / 2
		for i := 0; i < b.N; i++ {
			_, _ = flow.Slice(ctx, flow.Merge(flow.FromSlice(data[:half]), flow.FromSlice(data[half:])))
		}
	})
}

func BenchmarkMerge_Rill(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		half := len(data) / 2
		for i := 0; i < b.N; i++ {
			_, _ = rill.ToSlice(rill.Merge(rill.FromSlice(data[:half], nil), rill.FromSlice(data[half:], nil)))
		}
	})
}
