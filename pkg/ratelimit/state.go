// Package ratelimit paces requests to the DIRBS core system. A Redis-backed
// fixed window shares one request budget between every job process talking to
// the same core instance; a local token bucket is used when Redis is absent.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// RedisKeyPrefix namespaces the per-window request counters.
const RedisKeyPrefix = "drs:core:ratelimit"

// WarningRatio is the share of the window budget above which usage is logged
// as a warning.
const WarningRatio = 0.8

// Limiter blocks until a request to the core system may be sent.
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowState is the request usage of one fixed window.
type WindowState struct {
	// Start is the beginning of the window.
	Start time.Time `json:"start"`

	// Length is the window duration.
	Length time.Duration `json:"length"`

	// Requests counted in the window so far, including the caller's.
	Requests int64 `json:"requests"`

	// Limit is the number of requests allowed per window.
	Limit int64 `json:"limit"`
}

// Exceeded reports whether the caller must wait for the next window.
func (s *WindowState) Exceeded() bool {
	return s.Requests > s.Limit
}

// NearLimit reports whether usage reached WarningRatio without exceeding it.
func (s *WindowState) NearLimit() bool {
	return !s.Exceeded() && float64(s.Requests) >= float64(s.Limit)*WarningRatio
}

// ResetAt returns the end of the window.
func (s *WindowState) ResetAt() time.Time {
	return s.Start.Add(s.Length)
}

// TimeUntilReset returns the time left in the window, never negative.
func (s *WindowState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt())
	if d < 0 {
		return 0
	}
	return d
}

// windowKey returns the Redis key for the window containing t.
func windowKey(prefix string, t time.Time, length time.Duration) (string, time.Time) {
	start := t.Truncate(length)
	return prefix + ":" + strconv.FormatInt(start.UnixMilli(), 10), start
}
