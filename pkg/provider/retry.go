package provider

import (
	"context"
	"time"
)

// BackoffFunc maps a zero-based attempt number to the pause before the next
// attempt.
type BackoffFunc func(attempt int) time.Duration

// RetryPolicy governs per-provider retries before failing over to the next
// provider. The zero value means a single attempt, no retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// DefaultRetryPolicy retries once with a short linear pause. Failover to
// the next provider is usually cheaper than hammering a failing one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     LinearBackoff(250 * time.Millisecond),
	}
}

// LinearBackoff grows the pause proportionally to the attempt number.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt+1) * step
	}
}

// ExponentialBackoff doubles the pause per attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base << attempt
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// attempts normalizes MaxAttempts so a zero policy still tries once.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// wait sleeps for the backoff of the given attempt, returning early if the
// context is canceled.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	d := p.Backoff(attempt)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
