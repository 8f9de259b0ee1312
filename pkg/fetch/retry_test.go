package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	config := DefaultRetryConfig()

	tests := []struct {
		round int
		want  time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
		{6, 10 * time.Second},
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := config.Backoff(tt.round); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.round, got, tt.want)
		}
	}

	if got := (RetryConfig{}).Backoff(3); got != 0 {
		t.Errorf("zero config Backoff(3) = %v, want 0", got)
	}
}

func TestRetryConfig_WaitJitter(t *testing.T) {
	config := RetryConfig{InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}

	start := time.Now()
	if err := config.wait(context.Background(), 1); err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Errorf("wait() took %v, want >= 40ms (50ms - 20%%)", elapsed)
	}
}

func TestRetryConfig_WaitCancelled(t *testing.T) {
	config := RetryConfig{InitialBackoff: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := config.wait(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("wait() error = %v, want context.Canceled", err)
	}
}
