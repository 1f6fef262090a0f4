package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/gallery-api/pkg/logger"
)

// RetryableFunc is a unit of work that may be attempted more than once
type RetryableFunc func() error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger
	// RetryableErrors lists sentinels worth another attempt; empty means every error
	RetryableErrors []error
	// ShouldRetry overrides RetryableErrors when set
	ShouldRetry func(error) bool
}

// Retry runs fn until it succeeds, returns a non-retryable error or runs out of attempts
func Retry(ctx context.Context, fn RetryableFunc, cfg *RetryConfig) error {
	var lastErr error

	maxAttempts := cfg.MaxAttempts

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn()

		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if !cfg.retryable(err) {
			cfg.log().Warn("Non-retryable error encountered, giving up",
				"error", err,
				"attempt", attempt)
			return err
		}

		backoff := cfg.nextBackoff(attempt)

		cfg.log().Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", maxAttempts, lastErr)
}

// RetryWithDiscard retries a function and applies the discard policy if all retries fail
func RetryWithDiscard(ctx context.Context, fn RetryableFunc, cfg *RetryConfig, discardFn func(error) error) error {
	err := Retry(ctx, fn, cfg)

	if err != nil {
		cfg.log().Error("All retries failed, applying discard policy",
			"error", err,
			"maxAttempts", cfg.MaxAttempts)
		return discardFn(err)
	}
	return nil
}

func (c *RetryConfig) retryable(err error) bool {
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}

	if len(c.RetryableErrors) == 0 {
		return true
	}

	for _, retryableErr := range c.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	return false
}

func (c *RetryConfig) nextBackoff(attempt int) time.Duration {
	if c.BackoffStrategy == nil {
		return 0
	}
	return c.BackoffStrategy.NextBackoff(attempt)
}

func (c *RetryConfig) log() logger.Logger {
	if c.Logger == nil {
		return logger.NewNop()
	}
	return c.Logger
}
