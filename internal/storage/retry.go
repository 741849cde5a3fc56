package storage

import (
	"context"
	"math"
	"time"
)

const (
	maxRetries     = 5
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// RetryConfig controls how often a failed connection attempt is repeated.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry settings used for a database that may
// still be starting, such as a Postgres container.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config *RetryConfig) time.Duration {
	// initialBackoff * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// retryWithBackoff runs op until it succeeds, the retries are used up or ctx
// ends. A nil config means a single attempt.
func retryWithBackoff(ctx context.Context, config *RetryConfig, op func(context.Context) error) error {
	if config == nil {
		return op(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}

		// Don't wait after last attempt
		if attempt == config.MaxRetries {
			break
		}

		timer := time.NewTimer(calculateBackoff(attempt, config))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
