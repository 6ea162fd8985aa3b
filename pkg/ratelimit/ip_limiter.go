package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter keeps one token bucket per key, usually a client address.
// Buckets idle for longer than idleTTL are dropped on a later call.
type KeyedLimiter struct {
	limiters   map[string]*entry
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	lastSweep  time.Time
	now        func() time.Time
	mu         sync.Mutex
}

type entry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing burst requests at once and
// rate requests per second afterwards, per key
func NewKeyedLimiter(rate float64, burst int) *KeyedLimiter {
	return NewKeyedLimiterWithClock(rate, burst, time.Now)
}

// NewKeyedLimiterWithClock is NewKeyedLimiter with an injected clock
func NewKeyedLimiterWithClock(rate float64, burst int, now func() time.Time) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}

	return &KeyedLimiter{
		limiters:   make(map[string]*entry),
		maxTokens:  float64(burst),
		refillRate: rate,
		idleTTL:    10 * time.Minute,
		lastSweep:  now(),
		now:        now,
	}
}

// Allow reports whether a request for key may proceed, and if not, how long
// the caller should wait
func (l *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	b := l.bucket(key)

	if b.Allow() {
		return true, 0
	}

	return false, b.RetryAfter()
}

// Len returns the number of tracked keys
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *KeyedLimiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) >= l.idleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, exists := l.limiters[key]

	if !exists {
		e = &entry{bucket: newTokenBucket(l.maxTokens, l.refillRate, l.now)}
		l.limiters[key] = e
	}

	e.lastSeen = now
	return e.bucket
}
