package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "drs_retry_backoff_seconds",
	Help:    "Backoff waited before a retry round",
	Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
})

// RetryConfig controls the wait between retry rounds.
type RetryConfig struct {
	// InitialBackoff is the wait before the first retry round. Zero disables waiting.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between rounds.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after every round.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default round backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff returns the un-jittered wait before retry round n (1-based).
func (c RetryConfig) Backoff(round int) time.Duration {
	if c.InitialBackoff <= 0 || round < 1 {
		return 0
	}
	multiplier := c.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := c.InitialBackoff
	for i := 1; i < round; i++ {
		backoff = time.Duration(float64(backoff) * multiplier)
		if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// wait sleeps the jittered backoff for round, returning ctx.Err() if ctx
// ends first.
func (c RetryConfig) wait(ctx context.Context, round int) error {
	backoff := c.Backoff(round)
	if backoff <= 0 {
		return ctx.Err()
	}

	// ±20% jitter
	jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
	retryBackoffSeconds.Observe(jitter.Seconds())

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
