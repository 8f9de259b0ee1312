package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocal creates a token bucket of rps requests per second with the given
// burst. A non-positive rps disables limiting.
func NewLocal(rps float64, burst int) *LocalLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *LocalLimiter) Wait(ctx context.Context) error {
	if l.limiter.Tokens() < 1 {
		rateLimitWaitsTotal.WithLabelValues("local").Inc()
	}
	return l.limiter.Wait(ctx)
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *LocalLimiter {
	return NewLocal(0, 1)
}
