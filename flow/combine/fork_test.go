package combine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lguimbarda/deferflow/flow"
	"github.com/lguimbarda/deferflow/flow/combine"
	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/observe"
	"github.com/lguimbarda/deferflow/flow/observe/observetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a branch pipeline that remembers what it saw and emits nothing.
type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) branch(transform func(int) int) core.Transformer[int, int] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[int]) <-chan core.Result[int] {
		out := make(chan core.Result[int])
		go func() {
			defer close(out)
			for res := range in {
				r.mu.Lock()
				r.seen = append(r.seen, transform(res.Value()))
				r.mu.Unlock()
			}
		}()
		return out
	})
}

func (r *recorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen...)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for branch to finish")
	}
}

func TestFork(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	done := make(chan struct{})

	fork := combine.Fork(rec.branch(func(v int) int { return v * 2 }),
		combine.WithBranchDone(func() { close(done) }))

	got, err := flow.Slice(ctx, fork.Apply(flow.FromSlice([]int{1, 2, 3})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	waitClosed(t, done)
	assert.Equal(t, []int{2, 4, 6}, rec.values())
}

func TestFork_BranchFinishesAfterMaster(t *testing.T) {
	rec := &recorder{}
	done := make(chan struct{})
	var masterClosedFirst atomic.Bool

	master := make(chan (<-chan core.Result[int]), 1)
	fork := combine.Fork(rec.branch(func(v int) int { return v }),
		combine.WithBranchDone(func() {
			out := <-master
			// Every master value has been received by now, so a receive
			// only succeeds without blocking if out is closed.
			select {
			case _, open := <-out:
				masterClosedFirst.Store(!open)
			default:
			}
			close(done)
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := fork.Apply(flow.FromSlice([]int{1, 2, 3})).Emit(ctx)
	master <- out

	var got []int
	for res := range out {
		got = append(got, res.Value())
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	waitClosed(t, done)
	assert.True(t, masterClosedFirst.Load(), "branch finished before the master stream closed")
	assert.Equal(t, []int{1, 2, 3}, rec.values())
}

func TestFork_PassesErrorsOnMasterOnly(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	done := make(chan struct{})
	boom := errors.New("boom")

	source := flow.Emit(func(ctx context.Context) <-chan core.Result[int] {
		out := make(chan core.Result[int], 3)
		out <- core.Ok(1)
		out <- core.Err[int](boom)
		out <- core.Ok(2)
		close(out)
		return out
	})

	fork := combine.Fork(rec.branch(func(v int) int { return v }),
		combine.WithBranchDone(func() { close(done) }))

	results := flow.Collect(ctx, fork.Apply(source))
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[1].Error(), boom)

	waitClosed(t, done)
	assert.Equal(t, []int{1, 2}, rec.values())
}

func TestFork_BranchErrorsAreReported(t *testing.T) {
	meter := observetest.NewMeter()
	ctx, err := observe.WithMeter(context.Background(), meter)
	require.NoError(t, err)

	var handled atomic.Int32
	done := make(chan struct{})
	failing := core.Map(func(v int) (int, error) { return 0, errors.New("branch failed") })

	fork := combine.Fork[int, int](failing,
		combine.WithBranchErrorHandler(func(error) { handled.Add(1) }),
		combine.WithBranchDone(func() { close(done) }))

	got, err := flow.Slice(ctx, fork.Apply(flow.FromSlice([]int{1, 2, 3})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	waitClosed(t, done)
	assert.EqualValues(t, 3, handled.Load())
	assert.EqualValues(t, 3, meter.Total(observe.BranchErrors))
}

func TestFork_ThrottlesOnlyTheBranch(t *testing.T) {
	meter := observetest.NewMeter()
	ctx, err := observe.WithMeter(context.Background(), meter)
	require.NoError(t, err)

	release := make(chan struct{})
	done := make(chan struct{})
	var branchSeen atomic.Int32
	stalled := core.Transmit(func(ctx context.Context, in <-chan core.Result[int]) <-chan core.Result[int] {
		out := make(chan core.Result[int])
		go func() {
			defer close(out)
			<-release
			for range in {
				branchSeen.Add(1)
			}
		}()
		return out
	})

	source := make([]int, 10)
	for i := range source {
		source[i] = i
	}

	fork := combine.Fork[int, int](stalled,
		combine.WithHighWaterMark(1),
		combine.WithThrottleInterval(time.Millisecond),
		combine.WithBranchDone(func() { close(done) }))

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got, err := flow.Slice(tctx, fork.Apply(flow.FromSlice(source)))
	require.NoError(t, err)
	assert.Equal(t, source, got, "master completes while the branch is stalled")

	require.Eventually(t, func() bool {
		return meter.Total(observe.ForkThrottled) > 0
	}, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("branch finished while stalled")
	default:
	}

	close(release)
	waitClosed(t, done)
	assert.EqualValues(t, len(source), branchSeen.Load(), "branch still receives every value")
}

func TestFork_ConfigFromContext(t *testing.T) {
	meter := observetest.NewMeter()
	ctx, err := observe.WithMeter(context.Background(), meter)
	require.NoError(t, err)
	ctx = core.WithConfig(ctx, &combine.ForkConfig{HighWaterMark: 1000})

	release := make(chan struct{})
	defer close(release)
	stalled := core.Transmit(func(ctx context.Context, in <-chan core.Result[int]) <-chan core.Result[int] {
		out := make(chan core.Result[int])
		go func() {
			defer close(out)
			<-release
		}()
		return out
	})

	source := make([]int, 20)
	got, err := flow.Slice(ctx, combine.Fork[int, int](stalled).Apply(flow.FromSlice(source)))
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Zero(t, meter.Total(observe.ForkThrottled))
}

func TestFork_BranchEndsWhenConsumerStops(t *testing.T) {
	rec := &recorder{}
	done := make(chan struct{})

	fork := combine.Fork(rec.branch(func(v int) int { return v }),
		combine.WithBranchDone(func() { close(done) }))

	for res := range fork.Apply(flow.FromSlice([]int{1, 2, 3, 4, 5})).All(context.Background()) {
		assert.Equal(t, 1, res.Value())
		break
	}

	waitClosed(t, done)
}
