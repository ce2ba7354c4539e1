/*
Package effects runs fire-and-forget side effects (CRM status updates,
order creation, escalation notices) on a bounded worker pool.

The orchestrator's turn result is independent of these tasks: a side-effect
failure is logged and dropped, never surfaced to the user-facing reply.
*/
package effects

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ordesk/ordesk/internal/logging"
)

type task struct {
	name string
	fn   func(context.Context) error
}

// Pool is a bounded fire-and-forget executor. Submitting never blocks:
// when the queue is full the task is dropped and reported to the caller.
type Pool struct {
	tasks   chan task
	timeout time.Duration
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Option configures the Pool.
type Option func(*Pool)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithTaskTimeout bounds each task's execution. Defaults to 30s.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.timeout = d
	}
}

// NewPool starts workers goroutines consuming a queue of queueSize tasks.
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan task, queueSize),
		timeout: 30 * time.Second,
		logger:  logging.NewNop(),
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		taskCtx, cancel := context.WithTimeout(ctx, p.timeout)
		if err := t.fn(taskCtx); err != nil {
			p.logger.Warn("side effect failed", "task", t.name, "err", err)
		}
		cancel()
	}
}

// Submit enqueues a task. It reports false when the queue is full or the
// pool is closed; the task is then dropped, which is acceptable for
// side effects by contract.
func (p *Pool) Submit(name string, fn func(context.Context) error) bool {
	defer func() {
		// Submitting to a closed pool must not panic the caller's turn.
		_ = recover()
	}()

	select {
	case p.tasks <- task{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn("side effect queue full, dropping task", "task", name)
		return false
	}
}

// Close stops accepting tasks, waits for queued tasks to finish, then
// cancels the worker context. Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		p.cancel()
	})
}
