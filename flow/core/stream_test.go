package core

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func values(rs []Result[int]) (vals []int, errs int) {
	for _, r := range rs {
		switch {
		case r.IsValue():
			vals = append(vals, r.Value())
		case r.IsError():
			errs++
		}
	}
	return vals, errs
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name     string
		stream   Stream[int]
		wantLen  int
		wantVals []int
		wantErrs int
	}{
		{"values", results(Ok(1), Ok(2), Ok(3)), 3, []int{1, 2, 3}, 0},
		{"mixed", results(Ok(1), Err[int](errors.New("err")), Ok(3)), 3, []int{1, 3}, 1},
		{"sentinels are kept", results(Ok(1), EndOfStream[int]()), 2, []int{1}, 0},
		{"empty", results(), 0, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Collect(context.Background(), tt.stream)
			if len(got) != tt.wantLen {
				t.Fatalf("Collect() got %d results, want %d", len(got), tt.wantLen)
			}
			vals, errs := values(got)
			if !slices.Equal(vals, tt.wantVals) || errs != tt.wantErrs {
				t.Errorf("Collect() = %v with %d errors, want %v with %d", vals, errs, tt.wantVals, tt.wantErrs)
			}
		})
	}
}

func TestAll(t *testing.T) {
	var got []Result[int]
	for res := range results(Ok(1), Err[int](errors.New("boom")), Ok(3)).All(context.Background()) {
		got = append(got, res)
	}

	vals, errs := values(got)
	if !slices.Equal(vals, []int{1, 3}) || errs != 1 {
		t.Errorf("All() = %v with %d errors", vals, errs)
	}
}

func TestAll_EarlyBreakCancelsEmit(t *testing.T) {
	cancelled := make(chan struct{})
	stream := Emit(func(ctx context.Context) <-chan Result[int] {
		out := make(chan Result[int])
		go func() {
			defer close(out)
			defer close(cancelled)
			for i := 0; Send(ctx, out, Ok(i)); i++ {
			}
		}()
		return out
	})

	count := 0
	for range All(context.Background(), stream) {
		count++
		if count == 3 {
			break
		}
	}

	if count != 3 {
		t.Errorf("All() yielded %d values before break, want 3", count)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("breaking out of All() did not cancel the producer")
	}
}

func TestTransmit(t *testing.T) {
	label := Transmit(func(ctx context.Context, in <-chan Result[int]) <-chan Result[string] {
		out := make(chan Result[string])
		go func() {
			defer close(out)
			for res := range in {
				next := Err[string](res.Error())
				if res.IsValue() {
					next = Ok("v")
				}
				if !Send(ctx, out, next) {
					return
				}
			}
		}()
		return out
	})

	got := Collect(context.Background(), label.Apply(results(Ok(1), Err[int](errTerminal), Ok(2))))
	if len(got) != 3 {
		t.Fatalf("Transmit().Apply() got %d results, want 3", len(got))
	}
	if got[0].Value() != "v" || !errors.Is(got[1].Error(), errTerminal) || got[2].Value() != "v" {
		t.Errorf("Transmit().Apply() = %v", got)
	}
}

func TestSend(t *testing.T) {
	out := make(chan Result[int], 1)
	if !Send(context.Background(), out, Ok(1)) {
		t.Fatal("Send() to a ready channel should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Send(ctx, out, Ok(2)) {
		t.Error("Send() on a full channel with a cancelled context should fail")
	}
}
