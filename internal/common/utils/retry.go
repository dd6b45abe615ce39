package utils

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig holds configuration for retry operations with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first one
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth of the delay
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after every failed attempt
	BackoffFactor float64

	// JitterFactor adds up to this fraction of the delay at random (0.0-1.0)
	JitterFactor float64

	// RetryableErrors decides whether err should be retried. Nil retries everything.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the policy used when connecting to backing
// services at startup: 5 attempts starting at 500ms, doubling up to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryWithBackoff runs fn until it succeeds, the attempts are used up, the
// error is not retryable, or ctx is cancelled.
//
// Returns:
//   - nil if fn succeeds within the attempt limit
//   - the original error if it is not retryable
//   - a "retry cancelled" error wrapping ctx.Err()
//   - a "max retries exceeded" error wrapping the last failure
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if config.JitterFactor > 0 && delay > 0 {
			wait += time.Duration(rand.Int64N(int64(float64(delay)*config.JitterFactor) + 1))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
