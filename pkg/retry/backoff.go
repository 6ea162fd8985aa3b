package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for backoff strategies
type BackoffStrategy interface {
	// NextBackoff returns the delay before the given attempt, starting at 1
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval before every attempt
type ConstantBackoff struct {
	Interval time.Duration
}

// NextBackoff returns the constant backoff interval
func (b *ConstantBackoff) NextBackoff(attempt int) time.Duration {
	return b.Interval
}

// ExponentialBackoff implements an exponential backoff strategy with jitter
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextBackoff calculates the next exponentially increasing backoff duration with jitter
func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))

	if b.JitterFactor > 0 {
		backoff += rand.Float64() * b.JitterFactor * backoff
	}

	if b.MaxInterval > 0 && backoff > float64(b.MaxInterval) {
		backoff = float64(b.MaxInterval)
	}

	return time.Duration(backoff)
}

// NewDefaultExponentialBackoff is used for outbox redelivery
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      1.5,
		JitterFactor:    0.2,
	}
}

// NewConnectBackoff is used while waiting for the database at startup
func NewConnectBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
