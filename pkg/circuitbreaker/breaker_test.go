package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(c *clock) *CircuitBreaker {
	return New(Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second, HalfOpenMaxCalls: 1}).WithClock(c.now)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newTestBreaker(c)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	}

	assert.Equal(t, StateOpen, cb.State())
	called := false
	assert.ErrorIs(t, cb.Execute(func() error { called = true; return nil }), ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	cb := newTestBreaker(&clock{t: time.Now()})
	boom := errors.New("boom")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return boom })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Metrics()["failure_count"])
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c).OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	for i := 0; i < 3; i++ {
		cb.Failure()
	}

	assert.False(t, cb.Ready())
	c.advance(10 * time.Second)
	assert.True(t, cb.Ready())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Ready())
	assert.False(t, cb.Allow(), "only one trial call while half-open")

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	c.advance(10 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{
		"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed",
	}, transitions)
}
