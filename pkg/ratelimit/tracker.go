package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drs_ratelimit_waits_total",
		Help: "Total number of times a core request had to wait for budget",
	}, []string{"backend"})

	rateLimitWindowRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drs_ratelimit_window_requests",
		Help: "Requests counted in the current shared rate limit window",
	})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drs_ratelimit_errors_total",
		Help: "Total number of Redis errors while checking the shared rate limit",
	})
)

// RedisLimiter enforces a request budget per fixed window, shared through
// Redis by all processes using the same key prefix.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
	window time.Duration
	logger zerolog.Logger
}

// NewRedisLimiter creates a shared limiter allowing limit requests per window.
func NewRedisLimiter(redisClient *redis.Client, limit int, window time.Duration, logger zerolog.Logger) (*RedisLimiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0 (got %d)", limit)
	}
	if window <= 0 {
		window = time.Second
	}

	return &RedisLimiter{
		redis:  redisClient,
		prefix: RedisKeyPrefix,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}, nil
}

// Acquire counts one request in the current window and returns the window state.
func (l *RedisLimiter) Acquire(ctx context.Context) (*WindowState, error) {
	key, start := windowKey(l.prefix, time.Now(), l.window)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count request in redis: %w", err)
	}

	state := &WindowState{
		Start:    start,
		Length:   l.window,
		Requests: incr.Val(),
		Limit:    l.limit,
	}
	rateLimitWindowRequests.Set(float64(state.Requests))
	return state, nil
}

// GetState returns the current window usage without counting a request.
func (l *RedisLimiter) GetState(ctx context.Context) (*WindowState, error) {
	key, start := windowKey(l.prefix, time.Now(), l.window)

	requests, err := l.redis.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get window requests: %w", err)
	}

	return &WindowState{
		Start:    start,
		Length:   l.window,
		Requests: requests,
		Limit:    l.limit,
	}, nil
}

// Wait blocks until the shared budget admits one more request. Redis errors
// are logged and the request is let through.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		state, err := l.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rateLimitErrorsTotal.Inc()
			l.logger.Warn().Err(err).Msg("Shared rate limit unavailable, allowing request")
			return nil
		}

		if !state.Exceeded() {
			if state.NearLimit() {
				l.logger.Debug().
					Int64("requests", state.Requests).
					Int64("limit", state.Limit).
					Msg("Core request budget nearly used")
			}
			return nil
		}

		wait := state.TimeUntilReset()
		rateLimitWaitsTotal.WithLabelValues("redis").Inc()
		l.logger.Debug().
			Int64("requests", state.Requests).
			Int64("limit", state.Limit).
			Dur("wait", wait).
			Msg("Core request budget exhausted, waiting for next window")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
