package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ordesk/ordesk/pkg/provider"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(3, time.Minute, provider.WithClock(clock.Now))

	assert.Equal(t, provider.BreakerClosed, b.State())
	assert.True(t, b.CanExecute())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, provider.BreakerClosed, b.State(), "below threshold stays closed")
	assert.True(t, b.CanExecute())

	b.RecordFailure()
	assert.Equal(t, provider.BreakerOpen, b.State())
	assert.False(t, b.CanExecute(), "open breaker refuses immediately")
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(1, time.Minute, provider.WithClock(clock.Now))

	b.RecordFailure()
	assert.False(t, b.CanExecute())

	clock.Advance(59 * time.Second)
	assert.False(t, b.CanExecute(), "still inside recovery window")

	clock.Advance(time.Second)
	assert.True(t, b.CanExecute(), "recovery elapsed, trial call allowed")
	assert.Equal(t, provider.BreakerHalfOpen, b.State())
}

func TestBreaker_HalfOpenBudgetLimitsTrials(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(1, time.Minute, provider.WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(time.Minute)

	assert.True(t, b.CanExecute(), "first trial reserved")
	assert.False(t, b.CanExecute(), "budget of 1 exhausted while trial in flight")

	b.RecordSuccess()
	assert.True(t, b.CanExecute(), "closed again after successful trial")
}

func TestBreaker_SuccessDuringHalfOpenCloses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(2, 30*time.Second, provider.WithClock(clock.Now))

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(30 * time.Second)
	assert.True(t, b.CanExecute())

	b.RecordSuccess()
	assert.Equal(t, provider.BreakerClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
}

func TestBreaker_FailureDuringHalfOpenReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(5, time.Minute, provider.WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, b.CanExecute())

	// One failed trial reopens even though the count is below a fresh
	// threshold run.
	b.RecordFailure()
	assert.Equal(t, provider.BreakerOpen, b.State())
	assert.False(t, b.CanExecute())

	// And the recovery clock restarted at the trial failure.
	clock.Advance(59 * time.Second)
	assert.False(t, b.CanExecute())
	clock.Advance(time.Second)
	assert.True(t, b.CanExecute())
}

func TestBreaker_ManualResetBypassesRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := provider.NewBreaker(1, time.Hour, provider.WithClock(clock.Now))

	b.RecordFailure()
	assert.False(t, b.CanExecute())

	b.Reset()
	assert.Equal(t, provider.BreakerClosed, b.State())
	assert.True(t, b.CanExecute())
	assert.Equal(t, 0, b.FailureCount())
}
