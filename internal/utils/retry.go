package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	// Sleep is swapped out in tests.
	Sleep func(context.Context, time.Duration) error
}

// DefaultRetryConfig returns sensible retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// Backoff returns the delay before the given attempt (attempt 1 is the
// first retry).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if c.MaxDelay > 0 && time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// WithRetry runs op with exponential backoff until it succeeds, returns a
// non-retryable error, or runs out of attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, cfg.Backoff(attempt)); err != nil {
				return zero, fmt.Errorf("retry aborted: %w", lastErr)
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
