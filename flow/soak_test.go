package flow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lguimbarda/deferflow/flow"
	"github.com/lguimbarda/deferflow/flow/combine"
)

func runSoakScenario(t *testing.T, name string, stream flow.Stream[int], cancelAfter int, maxDuration time.Duration, expectMin int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxDuration)
	defer cancel()

	count := 0
	for res := range stream.Emit(ctx) {
		if res.IsValue() {
			count++
			if cancelAfter > 0 && count == cancelAfter {
				cancel()
			}
		}
	}

	if ctx.Err() != nil && ctx.Err() != context.Canceled {
		t.Fatalf("%s: context ended with %v", name, ctx.Err())
	}
	if count < expectMin {
		t.Fatalf("%s: expected at least %d values, got %d", name, expectMin, count)
	}
}

func TestSoak_UnboundedProducerSlowConsumer(t *testing.T) {
	var stopped atomic.Bool
	producer := flow.Generate(func(_ context.Context, push func(int) bool) error {
		defer stopped.Store(true)
		i := 0
		for push(i) {
			i++
			time.Sleep(10 * time.Microsecond)
		}
		return nil
	})

	slow := flow.Map(func(n int) (int, error) {
		time.Sleep(100 * time.Microsecond)
		return n, nil
	})

	runSoakScenario(t, "slow consumer", slow.Apply(producer), 200, 2*time.Second, 200)

	deadline := time.Now().Add(time.Second)
	for !stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("producer kept running after cancellation")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSoak_ForkWithSlowBranch(t *testing.T) {
	var seen atomic.Int64
	done := make(chan struct{})
	branch := flow.Map(func(n int) (int, error) {
		time.Sleep(50 * time.Microsecond)
		seen.Add(1)
		return n, nil
	})

	source := flow.FromSlice(make([]int, 2000))
	fork := flow.Fork[int, int](branch,
		combine.WithHighWaterMark(16),
		combine.WithThrottleInterval(100*time.Microsecond),
		combine.WithBranchDone(func() { close(done) }),
	)

	runSoakScenario(t, "fork", fork.Apply(source), 0, 5*time.Second, 2000)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("branch did not finish")
	}
	if got := seen.Load(); got != 2000 {
		t.Fatalf("branch saw %d values, want 2000", got)
	}
}

func TestSoak_ManyConcurrentReaders(t *testing.T) {
	const readers, values = 16, 5000

	ch := flow.NewChannel[int]()
	var wg sync.WaitGroup
	var received atomic.Int64
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, ok, err := ch.Next(context.Background())
				if err != nil || !ok {
					return
				}
				received.Add(1)
			}
		}()
	}

	for i := range values {
		ch.Push(i)
	}
	// Closing keeps what is still buffered deliverable.
	ch.Close()
	wg.Wait()

	if got := received.Load(); got != values {
		t.Fatalf("readers received %d values, want %d", got, values)
	}
}
