package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

func noWait() *ConstantBackoff { return &ConstantBackoff{Interval: time.Millisecond} }

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewTransientError("db down")
		}
		return nil
	}, &RetryConfig{MaxAttempts: 5, BackoffStrategy: noWait()})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return apperrors.NewValidationError("amount", "negative")
	}, &RetryConfig{MaxAttempts: 5, BackoffStrategy: noWait()})

	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, 1, calls)
}

func TestRetry_ExplicitRetryableErrors(t *testing.T) {
	errFlaky := errors.New("flaky")
	calls := 0

	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	}, &RetryConfig{MaxAttempts: 3, BackoffStrategy: noWait(), RetryableErrors: []error{errFlaky}})

	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "all 3 retry attempts failed")
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return apperrors.NewTransientError("db down")
	}, &RetryConfig{MaxAttempts: 3, BackoffStrategy: &ConstantBackoff{Interval: time.Hour}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExponentialBackoff(t *testing.T) {
	b := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, b.NextBackoff(1))
	assert.Equal(t, 200*time.Millisecond, b.NextBackoff(2))
	assert.Equal(t, 400*time.Millisecond, b.NextBackoff(3))
	assert.Equal(t, time.Second, b.NextBackoff(10))
	assert.Equal(t, 100*time.Millisecond, b.NextBackoff(0))
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewDefaultExponentialBackoff()

	for i := 0; i < 50; i++ {
		d := b.NextBackoff(2)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 900*time.Millisecond)
	}
}
