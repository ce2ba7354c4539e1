// Package provider implements the multi-provider generation layer:
// per-provider circuit breakers, a composable retry policy, and ordered
// failover across generative backends.
package provider

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker is a per-provider failure/recovery state machine. All mutation
// happens under its own lock, scoped to one provider; breakers never block
// on each other.
type Breaker struct {
	mu sync.Mutex

	state            BreakerState
	failureCount     int
	failureThreshold int
	lastFailureAt    time.Time
	recoveryTimeout  time.Duration
	halfOpenBudget   int
	halfOpenInFlight int

	now func() time.Time // injectable clock for deterministic tests
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides the breaker's time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithHalfOpenBudget sets how many trial calls may be in flight while the
// breaker probes recovery. Defaults to 1.
func WithHalfOpenBudget(budget int) BreakerOption {
	return func(b *Breaker) {
		if budget > 0 {
			b.halfOpenBudget = budget
		}
	}
}

// NewBreaker creates a closed breaker that opens after failureThreshold
// consecutive failures and probes recovery after recoveryTimeout.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		halfOpenBudget:   1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CanExecute reports whether a call may proceed. An open breaker flips to
// half-open once the recovery timeout has elapsed; in half-open, permission
// reserves one of the trial-call slots, released again by RecordSuccess or
// RecordFailure.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailureAt) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenInFlight < b.halfOpenBudget {
			b.halfOpenInFlight++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenInFlight = 0
}

// RecordFailure counts a failure; at the threshold (or during a half-open
// trial) the breaker opens and the recovery clock restarts.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = b.now()

	if b.state == BreakerHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = BreakerOpen
		b.halfOpenInFlight = 0
	}
}

// Reset forces the breaker closed, bypassing the recovery timeout. Used for
// operational recovery after a known outage is fixed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenInFlight = 0
	b.lastFailureAt = time.Time{}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
