package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_Refill(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tb := newTokenBucket(2, 1, c.now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.Equal(t, time.Second, tb.RetryAfter())

	c.advance(500 * time.Millisecond)
	assert.False(t, tb.Allow())
	assert.InDelta(t, 0.5, tb.Available(), 1e-9)

	c.advance(10 * time.Second)
	assert.Equal(t, 2.0, tb.Available(), "capped at capacity")
}

func TestKeyedLimiter_PerKey(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewKeyedLimiterWithClock(1, 1, c.now)

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)

	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "other clients have their own bucket")
}

func TestKeyedLimiter_EvictsIdle(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewKeyedLimiterWithClock(5, 5, c.now)

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	c.advance(11 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
