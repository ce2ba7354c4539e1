package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ordesk/ordesk/internal/logging"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/ports"
)

// Provider couples one generative backend with its priority and breaker.
// The list is static configuration: created once at startup, ordered by
// priority ascending, and never mutated afterwards.
type Provider struct {
	Name      string
	Priority  int
	Generator ports.Generator

	breaker *Breaker
}

// NewProvider wraps a generator with a fresh breaker.
func NewProvider(name string, priority int, gen ports.Generator, breaker *Breaker) *Provider {
	return &Provider{
		Name:      name,
		Priority:  priority,
		Generator: gen,
		breaker:   breaker,
	}
}

// Breaker exposes the provider's circuit breaker (status inspection,
// manual reset).
func (p *Provider) Breaker() *Breaker {
	return p.breaker
}

// Status is a point-in-time snapshot for admin surfaces.
type Status struct {
	Name         string       `json:"name"`
	Priority     int          `json:"priority"`
	State        BreakerState `json:"breaker_state"`
	FailureCount int          `json:"failure_count"`
}

// InvokerHooks are optional observability callbacks. Nil funcs are skipped.
type InvokerHooks struct {
	OnCall     func(provider string, elapsed time.Duration, err error)
	OnFailover func(from string)
}

// Invoker performs ordered failover across providers, consulting each
// breaker before the call and recording every outcome.
type Invoker struct {
	providers   []*Provider
	callTimeout time.Duration
	retry       RetryPolicy
	logger      *slog.Logger
	hooks       InvokerHooks
}

// InvokerOption configures the Invoker.
type InvokerOption func(*Invoker)

// WithRetryPolicy sets the per-provider retry policy.
func WithRetryPolicy(policy RetryPolicy) InvokerOption {
	return func(i *Invoker) {
		i.retry = policy
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// WithInvokerHooks registers observability callbacks.
func WithInvokerHooks(hooks InvokerHooks) InvokerOption {
	return func(i *Invoker) {
		i.hooks = hooks
	}
}

// NewInvoker creates an Invoker over the given providers, sorted by
// priority ascending. callTimeout bounds each individual backend call.
func NewInvoker(providers []*Provider, callTimeout time.Duration, opts ...InvokerOption) *Invoker {
	sorted := make([]*Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Priority < sorted[b].Priority
	})

	inv := &Invoker{
		providers:   sorted,
		callTimeout: callTimeout,
		retry:       RetryPolicy{MaxAttempts: 1},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke tries each provider in priority order and returns the first
// success. A provider whose breaker refuses is skipped without a call. When
// every provider is skipped or fails, a *domain.AllProvidersFailedError
// carrying the last underlying error is returned.
func (i *Invoker) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResponse, error) {
	var lastErr error

	for _, p := range i.providers {
		if err := ctx.Err(); err != nil {
			// The turn was abandoned upstream; stop burning quota.
			return domain.GenerationResponse{}, err
		}

		resp, err := i.callWithRetry(ctx, p, req)
		if err == nil {
			resp.Provider = p.Name
			return resp, nil
		}
		if !errors.Is(err, errBreakerRefused) {
			lastErr = err
		}

		if i.hooks.OnFailover != nil {
			i.hooks.OnFailover(p.Name)
		}
		i.logger.Warn("provider unavailable, failing over",
			"provider", p.Name,
			"breaker", p.breaker.State(),
			"err", err,
		)
	}

	return domain.GenerationResponse{}, &domain.AllProvidersFailedError{
		Attempted: len(i.providers),
		LastErr:   lastErr,
	}
}

// errBreakerRefused marks a provider skipped without a call, so it never
// overwrites a real underlying error.
var errBreakerRefused = errors.New("circuit breaker refused execution")

// callWithRetry runs the per-provider retry loop. Every attempt is recorded
// on the breaker, so a provider can open mid-loop and stop further tries.
func (i *Invoker) callWithRetry(ctx context.Context, p *Provider, req domain.GenerationRequest) (domain.GenerationResponse, error) {
	var lastErr error = errBreakerRefused

	for attempt := 0; attempt < i.retry.attempts(); attempt++ {
		if !p.breaker.CanExecute() {
			return domain.GenerationResponse{}, lastErr
		}

		resp, err := i.call(ctx, p, req)
		if err == nil {
			p.breaker.RecordSuccess()
			return resp, nil
		}

		p.breaker.RecordFailure()
		lastErr = fmt.Errorf("provider %s: %w", p.Name, err)

		if attempt < i.retry.attempts()-1 {
			if err := i.retry.wait(ctx, attempt); err != nil {
				return domain.GenerationResponse{}, lastErr
			}
		}
	}
	return domain.GenerationResponse{}, lastErr
}

// call performs one backend call under the invoker's timeout.
func (i *Invoker) call(ctx context.Context, p *Provider, req domain.GenerationRequest) (domain.GenerationResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Generator.Generate(callCtx, req)
	if i.hooks.OnCall != nil {
		i.hooks.OnCall(p.Name, time.Since(start), err)
	}
	return resp, err
}

// Preflight probes the highest-priority available provider with a cheap,
// quota-preserving call, distinguishing "provider down" from
// "quota/billing exhausted" before committing to full request processing.
// Only the probe's own outcome touches breaker state.
func (i *Invoker) Preflight(ctx context.Context) error {
	var lastErr error

	for _, p := range i.providers {
		if !p.breaker.CanExecute() {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
		err := p.Generator.Preflight(callCtx)
		cancel()

		if err == nil {
			p.breaker.RecordSuccess()
			return nil
		}
		p.breaker.RecordFailure()
		lastErr = fmt.Errorf("provider %s preflight: %w", p.Name, err)
	}

	if lastErr == nil {
		lastErr = &domain.AllProvidersFailedError{Attempted: len(i.providers)}
	}
	return lastErr
}

// ResetBreaker forces the named provider's breaker closed. The name "all"
// resets every breaker. Returns an error for an unknown provider.
func (i *Invoker) ResetBreaker(name string) error {
	if name == "all" {
		for _, p := range i.providers {
			p.breaker.Reset()
		}
		return nil
	}
	for _, p := range i.providers {
		if p.Name == name {
			p.breaker.Reset()
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q", name)
}

// Statuses returns a snapshot of every provider's breaker, in priority
// order.
func (i *Invoker) Statuses() []Status {
	out := make([]Status, 0, len(i.providers))
	for _, p := range i.providers {
		out = append(out, Status{
			Name:         p.Name,
			Priority:     p.Priority,
			State:        p.breaker.State(),
			FailureCount: p.breaker.FailureCount(),
		})
	}
	return out
}
