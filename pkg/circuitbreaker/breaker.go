package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateHalfOpen              // Testing if the dependency is healthy again
	StateOpen                  // Requests are rejected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config configures a CircuitBreaker
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// CircuitBreaker stops calling a failing dependency for ResetTimeout after
// FailureThreshold consecutive failures, then lets a few trial calls through.
type CircuitBreaker struct {
	config          Config
	state           State
	failureCount    int
	halfOpenCalls   int
	lastStateChange time.Time
	now             func() time.Time
	onStateChange   func(from, to State)
	mu              sync.Mutex
}

// New creates a new circuit breaker
func New(config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}

	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// WithClock replaces the clock used for the reset timeout
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	cb.lastStateChange = now()
	return cb
}

// OnStateChange registers a callback invoked on every transition
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
	return cb
}

// Execute runs fn when the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}

	if err := fn(); err != nil {
		cb.Failure()
		return err
	}

	cb.Success()
	return nil
}

// Allow checks if a call may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) >= cb.config.ResetTimeout {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// Ready reports whether Allow would currently let a call through, without
// consuming a half-open trial call
func (cb *CircuitBreaker) Ready() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenCalls < cb.config.HalfOpenMaxCalls
	default:
		return cb.now().Sub(cb.lastStateChange) >= cb.config.ResetTimeout
	}
}

// Success reports a successful call
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// Failure reports a failed call
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a snapshot for health reporting
func (cb *CircuitBreaker) Metrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":             cb.state.String(),
		"failure_count":     cb.failureCount,
		"failure_threshold": cb.config.FailureThreshold,
		"reset_timeout":     cb.config.ResetTimeout.String(),
		"time_in_state":     cb.now().Sub(cb.lastStateChange).String(),
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0

	if to == StateClosed {
		cb.failureCount = 0
	}

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
