package ordesk

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ordesk/ordesk/internal/logging"
	"github.com/ordesk/ordesk/internal/orchestrator"
	"github.com/ordesk/ordesk/pkg/adapters/memory"
	"github.com/ordesk/ordesk/pkg/adapters/openai"
	redisadapter "github.com/ordesk/ordesk/pkg/adapters/redis"
	"github.com/ordesk/ordesk/pkg/config"
	"github.com/ordesk/ordesk/pkg/conversation"
	"github.com/ordesk/ordesk/pkg/debounce"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/effects"
	"github.com/ordesk/ordesk/pkg/guard"
	"github.com/ordesk/ordesk/pkg/observability"
	"github.com/ordesk/ordesk/pkg/persistence/middleware"
	"github.com/ordesk/ordesk/pkg/ports"
	"github.com/ordesk/ordesk/pkg/provider"
)

// Engine is the high-level entry point for the Ordesk library. It wires the
// debouncer, the conversation state machine, the provider failover layer and
// the side-effect pool behind one Handle call.
type Engine struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	store     ports.SessionStore
	locker    ports.DistributedLocker
	machine   *conversation.Machine
	debouncer *debounce.Debouncer
	invoker   *provider.Invoker
	orch      *orchestrator.Orchestrator
	pool      *effects.Pool
	providers []*provider.Provider
	escalator ports.Escalator
	notifier  ports.OrderNotifier
	closers   []io.Closer
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSessionStore injects a custom session store, bypassing the configured
// memory/redis backend.
func WithSessionStore(store ports.SessionStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker injects a distributed locker for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithProviders injects ready-made providers, bypassing the configured
// chat-completion backends. Useful for embedding custom generators.
func WithProviders(providers []*provider.Provider) Option {
	return func(e *Engine) { e.providers = providers }
}

// WithEscalator registers the human-handoff collaborator.
func WithEscalator(esc ports.Escalator) Option {
	return func(e *Engine) { e.escalator = esc }
}

// WithOrderNotifier registers the CRM order-milestone collaborator.
func WithOrderNotifier(n ports.OrderNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New initializes the engine from configuration. Injected options take
// precedence over the corresponding config sections.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{cfg: cfg, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = newLogger(cfg)
	}
	e.metrics = observability.NewMetrics(e.registry)

	if e.store == nil {
		if err := e.initStore(); err != nil {
			return nil, err
		}
	}
	if err := e.wrapStore(); err != nil {
		return nil, err
	}

	machineOpts := []conversation.Option{conversation.WithLogger(e.logger)}
	if e.locker != nil {
		machineOpts = append(machineOpts, conversation.WithLocker(e.locker))
	}
	e.machine = conversation.NewMachine(e.store, machineOpts...)

	if e.providers == nil {
		if err := e.initProviders(); err != nil {
			return nil, err
		}
	}

	metrics := e.metrics
	e.invoker = provider.NewInvoker(e.providers, cfg.CallTimeout.Std(),
		provider.WithLogger(e.logger),
		provider.WithRetryPolicy(provider.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     provider.LinearBackoff(cfg.Retry.Backoff.Std()),
		}),
		provider.WithInvokerHooks(provider.InvokerHooks{
			OnCall: metrics.ObserveCall,
			OnFailover: func(from string) {
				metrics.Failovers.WithLabelValues(from).Inc()
			},
		}),
	)

	e.pool = effects.NewPool(cfg.Effects.Workers, cfg.Effects.QueueSize,
		effects.WithLogger(e.logger))

	e.debouncer = debounce.New(cfg.Debounce.Delay.Std(),
		debounce.WithLogger(e.logger),
		debounce.WithHooks(debounce.Hooks{
			OnRelease:   func(string, uint64) { metrics.WindowsReleased.Inc() },
			OnSupersede: func(string) { metrics.SupersededTotal.Inc() },
		}),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(e.logger),
		orchestrator.WithEffectsPool(e.pool),
		orchestrator.WithMetrics(e.metrics),
	}
	if e.escalator != nil {
		orchOpts = append(orchOpts, orchestrator.WithEscalator(e.escalator))
	}
	if e.notifier != nil {
		orchOpts = append(orchOpts, orchestrator.WithOrderNotifier(e.notifier))
	}
	e.orch = orchestrator.New(e.machine, e.invoker, guard.New(cfg.Session.MaxRetries), orchOpts...)

	return e, nil
}

func (e *Engine) initStore() error {
	switch e.cfg.Session.Store {
	case "redis":
		rc := e.cfg.Session.Redis
		client := goredis.NewClient(&goredis.Options{
			Addr:     rc.Address,
			Password: rc.Password,
			DB:       rc.DB,
		})
		var storeOpts []redisadapter.Option
		if rc.TTL > 0 {
			storeOpts = append(storeOpts, redisadapter.WithTTL(rc.TTL.Std()))
		}
		e.store = redisadapter.NewFromClient(client, storeOpts...)
		if e.locker == nil {
			e.locker = redisadapter.NewLocker(client, "ordesk:lock:")
		}
		e.closers = append(e.closers, client)
	default:
		e.store = memory.NewStore()
	}
	return nil
}

// wrapStore layers the configured persistence middlewares over the store.
// PII masking runs closest to the engine so the encrypted payload is
// already redacted.
func (e *Engine) wrapStore() error {
	cfg := e.cfg.Session

	if key := cfg.Encryption.ActiveKey; key != "" {
		active, err := cfg.Encryption.DecodeActiveKey()
		if err != nil {
			return fmt.Errorf("session encryption: %w", err)
		}
		fallbacks, err := cfg.Encryption.DecodeFallbackKeys()
		if err != nil {
			return fmt.Errorf("session encryption: %w", err)
		}
		e.store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		})(e.store)
	}

	if len(cfg.PII.MaskKeys) > 0 || len(cfg.PII.MaskContent) > 0 {
		e.store = middleware.NewPIIMiddleware(cfg.PII.MaskKeys, cfg.PII.MaskContent)(e.store)
	}

	return nil
}

func (e *Engine) initProviders() error {
	providers := make([]*provider.Provider, 0, len(e.cfg.Providers))
	for _, pc := range e.cfg.Providers {
		gen, err := openai.NewGenerator(openai.Config{
			APIKey:      pc.APIKey,
			BaseURL:     pc.APIEndpoint,
			Model:       pc.Model,
			Temperature: pc.Temperature,
			MaxTokens:   pc.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		breaker := provider.NewBreaker(
			e.cfg.Breaker.FailureThreshold,
			e.cfg.Breaker.RecoveryTimeout.Std(),
			provider.WithHalfOpenBudget(e.cfg.Breaker.HalfOpenBudget),
		)
		providers = append(providers, provider.NewProvider(pc.Name, pc.Priority, gen, breaker))
	}
	e.providers = providers
	return nil
}

// Handle buffers one user fragment and, when the debounce window closes with
// this fragment as the newest, runs the full turn. Superseded fragments
// return domain.ErrSuperseded: the reply will arrive on a later call.
func (e *Engine) Handle(ctx context.Context, userID string, frag domain.BufferedFragment) (orchestrator.TurnResult, error) {
	turn, err := e.debouncer.Submit(ctx, userID, frag)
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	return e.orch.Process(ctx, userID, turn)
}

// Reset drops the user's pending window and deletes the stored session.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	e.debouncer.Clear(userID)
	return e.orch.Reset(ctx, userID)
}

// Sessions lists the known session IDs.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.orch.Sessions(ctx)
}

// ProviderStatuses snapshots every provider's breaker for admin surfaces.
func (e *Engine) ProviderStatuses() []provider.Status {
	return e.orch.ProviderStatuses()
}

// ResetBreaker manually closes one breaker, or all of them for name "all".
func (e *Engine) ResetBreaker(name string) error {
	return e.orch.ResetBreaker(name)
}

// Preflight probes the first available generative backend.
func (e *Engine) Preflight(ctx context.Context) error {
	return e.orch.Preflight(ctx)
}

// Registry exposes the engine's metric registry for the HTTP /metrics
// endpoint.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// Close drains the side-effect pool and releases backend connections.
func (e *Engine) Close() error {
	e.pool.Close()
	var firstErr error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Log.Format == "json" {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}
