package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests with an optional random delay added on top
// of the token bucket. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	bucket   *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// NewLimiter creates a limiter allowing rps requests per second with a burst
// of one. Jitter is clamped to [0, 1] and scales the extra random delay as a
// fraction of the request interval. If rps is <= 0, the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	return &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(rps), 1),
		jitter:   jitter,
		interval: time.Duration(float64(time.Second) / rps),
	}
}

// Wait blocks until the next request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}

	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}

	if l.jitter <= 0 {
		return nil
	}

	extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	if extra <= 0 {
		return nil
	}

	t := time.NewTimer(extra)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlimited reports whether the limiter lets every request through immediately.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.bucket == nil
}
