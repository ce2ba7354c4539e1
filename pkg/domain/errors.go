package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSuperseded is returned to a debounce waiter whose window was extended
// by a newer fragment. It is expected and non-fatal: the caller drops the
// turn and performs no further side effects.
var ErrSuperseded = errors.New("debounce window superseded")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// AggregationTimeoutError reports that a debounce window never released
// within the caller's budget. Distinguishable from ErrSuperseded so the
// caller can answer with a "system busy" fallback instead of dropping.
type AggregationTimeoutError struct {
	UserID  string
	Waited  time.Duration
	Elapsed time.Duration
}

func (e *AggregationTimeoutError) Error() string {
	return fmt.Sprintf("debounce aggregation for user %q timed out after %s", e.UserID, e.Elapsed)
}

// AllProvidersFailedError reports that every configured provider was either
// skipped by its circuit breaker or failed the call. It carries the last
// underlying error for diagnosis.
type AllProvidersFailedError struct {
	Attempted int
	LastErr   error
}

func (e *AllProvidersFailedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("all %d providers unavailable (circuits open)", e.Attempted)
	}
	return fmt.Sprintf("all %d providers failed: %v", e.Attempted, e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.LastErr }
