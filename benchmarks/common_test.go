// Package benchmarks compares deferflow against popular Go stream and
// collection libraries.
package benchmarks

import (
	"context"
	"testing"
)

var sizes = []struct {
	name string
	n    int
}{
	{"Small", 100},
	{"Medium", 1_000},
	{"Large", 10_000},
}

func generateInts(n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = i
	}
	return data
}

// deferflow's Map takes func(IN) (OUT, error).
func squareWithErr(x int) (int, error) {
	return x * x, nil
}

func square(x int) int {
	return x * x
}

func isEven(x int) bool {
	return x%2 == 0
}

var ctx = context.Background()

// bySize runs fn as one sub-benchmark per input size.
func bySize(b *testing.B, fn func(b *testing.B, data []int)) {
	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			data := generateInts(size.n)
			b.ReportAllocs()
			b.ResetTimer()
			fn(b, data)
		})
	}
}
