package benchmarks

import (
	"testing"

	"github.com/destel/rill"
	"github.com/lguimbarda/deferflow/flow"
)

// Producer and consumer on separate goroutines, one value at a time.

func BenchmarkHandoff_Channel(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			ch := flow.NewChannel[int]()
			go func() {
				for _, v := range data {
					ch.Push(v)
				}
				ch.Close()
			}()
			for {
				if _, ok, _ := ch.Next(ctx); !ok {
					break
				}
			}
		}
	})
}

func BenchmarkHandoff_ChannelStream(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			ch := flow.NewChannel[int]()
			go func() {
				for _, v := range data {
					ch.Push(v)
				}
				ch.Close()
			}()
			_, _ = flow.Slice(ctx, ch)
		}
	})
}

func BenchmarkHandoff_Builtin(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			ch := make(chan int)
			go func() {
				for _, v := range data {
					ch <- v
				}
				close(ch)
			}()
			for range ch {
			}
		}
	})
}

func BenchmarkHandoff_Rill(b *testing.B) {
	bySize(b, func(b *testing.B, data []int) {
		for i := 0; i < b.N; i++ {
			_, _ = rill.ToSlice(rill.FromSlice(data, nil))
		}
	})
}
