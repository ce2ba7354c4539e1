/*
Package debounce coalesces bursts of near-simultaneous message fragments
from one user into a single aggregated turn.

The first fragment for a user opens a window and starts a timer; every
later fragment merges into the pending buffer, resets the timer and
supersedes the previous waiter. When the timer finally fires, exactly one
waiter — the one that submitted the newest fragment — receives the merged
turn; every earlier waiter has already been resolved with
domain.ErrSuperseded and must perform no further side effects.
*/
package debounce

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ordesk/ordesk/internal/logging"
	"github.com/ordesk/ordesk/pkg/domain"
)

// Hooks are optional observability callbacks. Nil funcs are skipped.
type Hooks struct {
	OnRelease   func(userID string, generation uint64)
	OnSupersede func(userID string)
}

type result struct {
	turn domain.AggregatedTurn
	err  error
}

// window is the pending buffer for one user. Its mutex is the only lock
// held while mutating the buffer; the debouncer's map lock is never held
// across a wait.
type window struct {
	mu sync.Mutex

	gen      uint64 // bumped per fragment; identifies the current owner
	seq      uint64 // arrival sequence, breaks wall-clock ties
	parts    []string
	hasImage bool
	imageURL string
	metadata map[string]any

	timer  *time.Timer
	waiter chan result // current owner's channel, buffered size 1
	closed bool
}

// Debouncer aggregates fragments per user key. Different users proceed
// fully in parallel; fragments of one user are serialized by the window
// mutex.
type Debouncer struct {
	delay  time.Duration
	logger *slog.Logger
	hooks  Hooks

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures the Debouncer.
type Option func(*Debouncer)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Debouncer) {
		d.logger = logger
	}
}

// WithHooks registers observability callbacks.
func WithHooks(hooks Hooks) Option {
	return func(d *Debouncer) {
		d.hooks = hooks
	}
}

// New creates a Debouncer with the given aggregation delay.
func New(delay time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{
		delay:   delay,
		logger:  logging.NewNop(),
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit buffers one fragment and blocks until the user's window releases.
//
// Exactly one Submit call per window returns the merged turn; calls whose
// fragment was superseded by a newer one return domain.ErrSuperseded. If
// ctx expires while waiting, an *domain.AggregationTimeoutError is
// returned and the window is discarded.
//
// An empty fragment still counts as a live turn: it resets the timer even
// though it contributes no text.
func (d *Debouncer) Submit(ctx context.Context, userID string, frag domain.BufferedFragment) (domain.AggregatedTurn, error) {
	start := time.Now()

	ch, gen := d.merge(userID, frag)

	select {
	case res := <-ch:
		return res.turn, res.err
	case <-ctx.Done():
		d.abandon(userID, ch)
		d.logger.Warn("debounce wait exceeded caller budget",
			"user_id", userID,
			"generation", gen,
			"elapsed", time.Since(start),
		)
		return domain.AggregatedTurn{}, &domain.AggregationTimeoutError{
			UserID:  userID,
			Waited:  d.delay,
			Elapsed: time.Since(start),
		}
	}
}

// merge folds the fragment into the user's window, supersedes the previous
// waiter and (re)arms the timer. It returns the new owner channel.
func (d *Debouncer) merge(userID string, frag domain.BufferedFragment) (chan result, uint64) {
	for {
		d.mu.Lock()
		w, ok := d.windows[userID]
		if !ok {
			w = &window{metadata: make(map[string]any)}
			d.windows[userID] = w
		}
		d.mu.Unlock()

		w.mu.Lock()
		if w.closed {
			// Lost a race with fire/clear; the map entry is gone. Retry.
			w.mu.Unlock()
			continue
		}

		w.gen++
		w.seq++
		if frag.Seq == 0 {
			frag.Seq = w.seq
		}
		if text := strings.TrimSpace(frag.Text); text != "" {
			w.parts = append(w.parts, text)
		}
		if frag.HasImage {
			w.hasImage = true
			w.imageURL = frag.ImageURL
		}
		for k, v := range frag.Metadata {
			w.metadata[k] = v
		}

		// Resolve the previous owner: its work is stale now.
		if w.waiter != nil {
			w.waiter <- result{err: domain.ErrSuperseded}
			if d.hooks.OnSupersede != nil {
				d.hooks.OnSupersede(userID)
			}
		}

		ch := make(chan result, 1)
		w.waiter = ch
		gen := w.gen

		// Arm a fresh timer bound to this generation. A stale timer that
		// already fired will see the generation mismatch and no-op.
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timer = time.AfterFunc(d.delay, func() {
			d.fire(userID, gen)
		})
		w.mu.Unlock()

		return ch, gen
	}
}

// fire releases the window if it still belongs to the given generation.
func (d *Debouncer) fire(userID string, gen uint64) {
	d.mu.Lock()
	w, ok := d.windows[userID]
	d.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	if w.closed || w.gen != gen || w.waiter == nil {
		w.mu.Unlock()
		return
	}

	turn := domain.AggregatedTurn{
		Text:       strings.Join(w.parts, "\n"),
		HasImage:   w.hasImage,
		ImageURL:   w.imageURL,
		Metadata:   w.metadata,
		Generation: w.gen,
	}
	fragments := len(w.parts)
	w.waiter <- result{turn: turn}
	w.waiter = nil
	w.closed = true
	w.mu.Unlock()

	d.mu.Lock()
	delete(d.windows, userID)
	d.mu.Unlock()

	if d.hooks.OnRelease != nil {
		d.hooks.OnRelease(userID, turn.Generation)
	}
	d.logger.Debug("debounce window released",
		"user_id", userID,
		"generation", turn.Generation,
		"fragments", fragments,
	)
}

// abandon discards the window after its owner gave up waiting. Only the
// current owner tears the window down; a superseded caller whose context
// also expired leaves the newer window alone.
func (d *Debouncer) abandon(userID string, ch chan result) {
	d.mu.Lock()
	w, ok := d.windows[userID]
	d.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.waiter != ch {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.waiter = nil
	w.closed = true

	d.mu.Lock()
	delete(d.windows, userID)
	d.mu.Unlock()
}

// Clear cancels any pending window for the user and discards its buffer.
// The pending waiter, if any, resolves to domain.ErrSuperseded. Clear is
// idempotent and used on explicit session reset.
func (d *Debouncer) Clear(userID string) {
	d.mu.Lock()
	w, ok := d.windows[userID]
	if ok {
		delete(d.windows, userID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.waiter != nil {
		w.waiter <- result{err: domain.ErrSuperseded}
		w.waiter = nil
	}
	w.closed = true
}

// Pending reports whether a window is currently open for the user.
func (d *Debouncer) Pending(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.windows[userID]
	return ok
}
