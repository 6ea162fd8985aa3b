package ratelimit

import (
	"math"
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiting algorithm
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64
	lastRefillTime time.Time
	now            func() time.Time
	mutex          sync.Mutex
}

// NewTokenBucket creates a full bucket holding maxTokens that refills at
// refillRate tokens per second
func NewTokenBucket(maxTokens, refillRate float64) *TokenBucket {
	return newTokenBucket(maxTokens, refillRate, time.Now)
}

func newTokenBucket(maxTokens, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: now(),
		now:            now,
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN takes n tokens when that many are available
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// Available returns the number of tokens currently in the bucket
func (tb *TokenBucket) Available() float64 {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	return tb.tokens
}

// RetryAfter is how long until one token is available
func (tb *TokenBucket) RetryAfter() time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()

	if tb.tokens >= 1 || tb.refillRate <= 0 {
		return 0
	}

	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

// refill must be called with mutex held
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()

	if elapsed <= 0 {
		return
	}

	tb.lastRefillTime = now
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}
