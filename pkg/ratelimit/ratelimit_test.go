package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NoBlockWhenZeroRPS(t *testing.T) {
	limiter := NewLimiter(0, 0.5)
	if !limiter.Unlimited() {
		t.Fatalf("expected a zero-rps limiter to be unlimited")
	}

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with 0 RPS should not block")
	}
}

func TestLimiter_NilIsUnlimited(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not fail: %v", err)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(10, 0) // 100ms interval
	ctx := context.Background()

	// The first token is available immediately (burst of one).
	_ = limiter.Wait(ctx)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	duration := time.Since(start)
	if duration < 50*time.Millisecond || duration > 150*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewLimiter(1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	_ = limiter.Wait(ctx) // drain the burst token
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestLimiter_Jitter(t *testing.T) {
	limiter := NewLimiter(10, 0.5) // 100ms interval, up to 50ms extra
	ctx := context.Background()

	_ = limiter.Wait(ctx)

	start := time.Now()
	_ = limiter.Wait(ctx)
	duration := time.Since(start)

	if duration < 50*time.Millisecond || duration > 300*time.Millisecond {
		t.Errorf("expected jittered wait roughly between 100ms and 150ms, took %v", duration)
	}
}
