package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ordesk/ordesk/internal/logging"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/ports"
)

// lockEntry holds the mutex and the reference count for one session.
type lockEntry struct {
	mu     sync.Mutex
	refs   int
	unlock ports.UnlockFunc
}

// Machine orchestrates session state access, ensuring safe concurrent
// operations. It uses reference counting to garbage collect unused locks.
type Machine struct {
	store ports.SessionStore

	mu    sync.Mutex // Global lock for the map
	locks map[string]*lockEntry

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Machine.
type Option func(*Machine)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Machine) {
		m.locker = locker
	}
}

// WithLogger configures a logger for internal events (like deferred errors).
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithLockTTL overrides the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.lockTTL = ttl
	}
}

// NewMachine creates a conversation state machine backed by the given store.
func NewMachine(store ports.SessionStore, opts ...Option) *Machine {
	m := &Machine{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu and call release(sessionID) after unlocking.
func (m *Machine) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Machine) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the per-session lock. All loads and
// commits of one turn run inside a single WithLock scope, which is the
// single-writer discipline for SessionState.
func (m *Machine) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// LoadOrStart loads a session, initializing a new one at the initial state
// when none exists yet. Callers must already hold the session lock.
func (m *Machine) LoadOrStart(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err == nil {
		// Stores may round-trip an empty metadata map to nil; the
		// pipeline writes turn bookkeeping into it unconditionally.
		if state.Metadata == nil {
			state.Metadata = make(map[string]any)
		}
		return state, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}

	state = domain.NewSessionState(sessionID)
	if err := m.store.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	return state, nil
}

// Commit applies a guard-approved transition: it appends the user and
// assistant messages, moves the current state to the guard's verdict,
// advances the dialog phase and the step counter, and persists. The input
// state is not mutated; the committed snapshot is returned.
//
// Commit is the only code path that writes SessionState.
func (m *Machine) Commit(
	ctx context.Context,
	state *domain.SessionState,
	userText string,
	resp domain.GenerationResponse,
	verdict domain.TransitionResult,
) (*domain.SessionState, error) {
	next := state.Clone()

	if userText != "" {
		next.Messages = append(next.Messages, domain.Message{Role: domain.RoleUser, Content: userText})
	}
	if resp.Reply != "" {
		next.Messages = append(next.Messages, domain.Message{Role: domain.RoleAssistant, Content: resp.Reply})
	}

	next.Current = verdict.FinalTo
	next.StepNumber = state.StepNumber + 1
	next.DialogPhase = advancePhase(next)

	if err := m.store.Save(ctx, state.SessionID, next); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.logger.Debug("turn committed",
		"session_id", state.SessionID,
		"from", state.Current,
		"to", next.Current,
		"step", next.StepNumber,
		"corrected", verdict.Corrected,
	)
	return next, nil
}

// Delete removes the session from the store.
func (m *Machine) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Machine) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Machine) Store() ports.SessionStore {
	return m.store
}

// phaseRank orders dialog phases so they only ever move forward.
var phaseRank = map[string]int{
	domain.PhaseGreeting:      0,
	domain.PhaseNeedsKnown:    1,
	domain.PhaseSizeResolved:  2,
	domain.PhaseOfferMade:     3,
	domain.PhasePaymentAgreed: 4,
	domain.PhaseClosed:        5,
}

// impliedPhase maps a committed state to the milestone it implies.
var impliedPhase = map[domain.StateID]string{
	domain.StateDiscovery:       domain.PhaseNeedsKnown,
	domain.StateVision:          domain.PhaseNeedsKnown,
	domain.StateSizeColor:       domain.PhaseNeedsKnown,
	domain.StateOffer:           domain.PhaseOfferMade,
	domain.StatePaymentDelivery: domain.PhaseOfferMade,
	domain.StateUpsell:          domain.PhasePaymentAgreed,
	domain.StateEnd:             domain.PhaseClosed,
}

// advancePhase computes the monotone dialog phase for a committed state,
// also consulting the order draft: a fully-specified variant marks
// size/color resolved even before the offer lands.
func advancePhase(state *domain.SessionState) string {
	current := phaseRank[state.DialogPhase]

	if implied, ok := impliedPhase[state.Current]; ok {
		if phaseRank[implied] > current {
			current = phaseRank[implied]
		}
	}

	if draft, err := domain.DecodeOrderDraft(state.Metadata); err == nil && draft.SizeColorResolved() {
		if phaseRank[domain.PhaseSizeResolved] > current {
			current = phaseRank[domain.PhaseSizeResolved]
		}
	}

	for phase, rank := range phaseRank {
		if rank == current {
			return phase
		}
	}
	return state.DialogPhase
}
