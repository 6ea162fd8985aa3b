package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/vaidashi/support-portal/pkg/errors"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// RetryableFunc defines a function that can be retried
type RetryableFunc func(ctx context.Context) error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger
	// RetryableErrors limits retries to errors matching one of these.
	// When empty, apperrors.IsRetryable decides.
	RetryableErrors []error
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Retry(ctx context.Context, fn RetryableFunc, cfg *RetryConfig) error {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn(ctx)

		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == attempts {
			break
		}

		if !isRetryable(err, cfg.RetryableErrors) {
			log.Warn("Non-retryable error encountered, giving up",
				"error", err,
				"attempt", attempt)
			return err
		}

		var backoff time.Duration
		if cfg.BackoffStrategy != nil {
			backoff = cfg.BackoffStrategy.NextBackoff(attempt)
		}

		log.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", attempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", attempts, lastErr)
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return apperrors.IsRetryable(err)
	}

	for _, retryableErr := range retryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	return false
}
