package parallel

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	results := Map(context.Background(), items, 0, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})

	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error at %d: %v", i, r.Err)
		}
		if r.Value != items[i]*10 {
			t.Errorf("result %d: expected %d, got %d", i, items[i]*10, r.Value)
		}
	}
}

func TestMap_FailureIsolation(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	results := Map(context.Background(), []string{"a", "fail", "b", "fail", "c"}, 2,
		func(_ context.Context, s string) (string, error) {
			calls.Add(1)
			if s == "fail" {
				return "", boom
			}
			return s + s, nil
		})

	if n := calls.Load(); n != 5 {
		t.Errorf("expected every item to run, got %d calls", n)
	}

	vals := Values(results)
	want := []string{"aa", "bb", "cc"}
	if len(vals) != len(want) {
		t.Fatalf("expected %d successes, got %v", len(want), vals)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("value %d: expected %s, got %s", i, want[i], vals[i])
		}
	}
	if !errors.Is(results[1].Err, boom) || !errors.Is(results[3].Err, boom) {
		t.Errorf("expected failures recorded at their positions")
	}
}

func TestMap_Limit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 20)

	Map(context.Background(), items, 3, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	if p := peak.Load(); p > 3 {
		t.Errorf("expected at most 3 concurrent calls, saw %d", p)
	}
}

func TestMap_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Map(ctx, []int{1, 2}, 0, func(context.Context, int) (int, error) {
		t.Error("fn should not run on a canceled context")
		return 0, nil
	})
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", r.Err)
		}
	}
}

func TestMap_Empty(t *testing.T) {
	results := Map(context.Background(), nil, 0, func(context.Context, int) (int, error) { return 0, nil })
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestMap_RecoversPanic(t *testing.T) {
	results := Map(context.Background(), []int{1, 2, 3}, 0, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			panic("bad page")
		}
		return n, nil
	})

	if results[1].Err == nil || !strings.Contains(results[1].Err.Error(), "panicked: bad page") {
		t.Errorf("expected recovered panic as item error, got %v", results[1].Err)
	}
	if results[0].Err != nil || results[0].Value != 1 || results[2].Err != nil || results[2].Value != 3 {
		t.Errorf("expected siblings to succeed, got %+v", results)
	}
	if got := Values(results); len(got) != 2 {
		t.Errorf("expected 2 values, got %v", got)
	}
}
