package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordesk/ordesk/internal/orchestrator"
	"github.com/ordesk/ordesk/pkg/adapters/memory"
	redisadapter "github.com/ordesk/ordesk/pkg/adapters/redis"
	"github.com/ordesk/ordesk/pkg/conversation"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/guard"
	"github.com/ordesk/ordesk/pkg/ports"
	"github.com/ordesk/ordesk/pkg/provider"
)

// stubGenerator answers with a fixed response or error and counts calls.
type stubGenerator struct {
	resp  domain.GenerationResponse
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResponse, error) {
	s.calls++
	if s.err != nil {
		return domain.GenerationResponse{}, s.err
	}
	return s.resp, nil
}

func (s *stubGenerator) Preflight(ctx context.Context) error { return s.err }

// recorder captures escalations and order events.
type recorder struct {
	mu          sync.Mutex
	escalations []ports.Escalation
	orders      []ports.OrderEvent
}

func (r *recorder) Escalate(ctx context.Context, esc ports.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations = append(r.escalations, esc)
	return nil
}

func (r *recorder) NotifyOrder(ctx context.Context, ev ports.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, ev)
	return nil
}

// failingStore breaks selected operations.
type failingStore struct {
	ports.SessionStore
	failLoad bool
	failSave bool
}

func (f *failingStore) Load(ctx context.Context, id string) (*domain.SessionState, error) {
	if f.failLoad {
		return nil, errors.New("store unavailable")
	}
	return f.SessionStore.Load(ctx, id)
}

func (f *failingStore) Save(ctx context.Context, id string, s *domain.SessionState) error {
	if f.failSave {
		return errors.New("store unavailable")
	}
	return f.SessionStore.Save(ctx, id, s)
}

func newOrchestrator(gen ports.Generator, store ports.SessionStore, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	machine := conversation.NewMachine(store)
	inv := provider.NewInvoker([]*provider.Provider{
		provider.NewProvider("primary", 1, gen, provider.NewBreaker(3, time.Minute)),
	}, time.Second)
	return orchestrator.New(machine, inv, guard.New(3), opts...)
}

func turn(text string) domain.AggregatedTurn {
	return domain.AggregatedTurn{Text: text, Generation: 1}
}

func TestProcess_HappyPath(t *testing.T) {
	store := memory.NewStore()
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply:         "What are you shopping for today?",
		ProposedState: domain.StateDiscovery,
	}}, store)

	res, err := o.Process(context.Background(), "user-1", turn("hi"))
	require.NoError(t, err)

	assert.Equal(t, "What are you shopping for today?", res.Reply)
	assert.Equal(t, domain.StateDiscovery, res.FinalState)
	assert.False(t, res.ShouldEscalate)
	assert.False(t, res.Corrected)
	assert.Equal(t, 1, res.Step)

	saved, err := store.Load(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDiscovery, saved.Current)
	require.Len(t, saved.Messages, 2)
}

func TestProcess_IllegalProposalCorrected(t *testing.T) {
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply:         "Let's jump to payment!",
		ProposedState: domain.StatePaymentDelivery,
	}}, memory.NewStore())

	ctx := context.Background()
	// First turn moves init -> discovery is illegal too; propose payment
	// straight from init.
	res, err := o.Process(ctx, "user-1", turn("take my money"))
	require.NoError(t, err)

	assert.True(t, res.Corrected)
	assert.Equal(t, domain.ReasonIllegalJump, res.CorrectionWhy)
	assert.Equal(t, domain.StateInit, res.FinalState, "illegal jump stays put")
	assert.NotEmpty(t, res.Reply, "corrected turns still answer the user")
}

func TestProcess_AllProvidersFailedEscalates(t *testing.T) {
	store := memory.NewStore()
	rec := &recorder{}
	o := newOrchestrator(&stubGenerator{err: errors.New("backend down")}, store,
		orchestrator.WithEscalator(rec))

	res, err := o.Process(context.Background(), "user-1", turn("hello?"))
	require.NoError(t, err, "total provider failure must not crash the turn")

	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, domain.StateComplaint, res.FinalState)
	assert.NotEmpty(t, res.Reply, "user always receives some reply")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.escalations, 1)
	assert.Equal(t, "user-1", rec.escalations[0].SessionID)

	// The failed step was persisted with its retry bookkeeping.
	saved, err := store.Load(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplaint, saved.Current)
	assert.Equal(t, 1, saved.StepNumber)
}

func TestProcess_EmptyTurnGetsFallbackReply(t *testing.T) {
	store := memory.NewStore()
	o := newOrchestrator(&stubGenerator{}, store)

	res, err := o.Process(context.Background(), "user-1", domain.AggregatedTurn{Generation: 1})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Reply, "empty turns are answered, not dropped")
	assert.Equal(t, domain.StateInit, res.FinalState)

	saved, err := store.Load(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.StepNumber, "the turn was still committed")
}

func TestProcess_RedisBackedEmptyFirstTurn(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redisadapter.NewFromClient(client)
	defer store.Close()

	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply:         "What are you shopping for today?",
		ProposedState: domain.StateDiscovery,
	}}, store)
	ctx := context.Background()

	// An empty first turn commits a session with no metadata, which the
	// JSON round trip through redis drops entirely. The follow-up turn
	// writes retry bookkeeping into the loaded map and must not panic.
	res, err := o.Process(ctx, "user-1", domain.AggregatedTurn{Generation: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInit, res.FinalState)

	res, err = o.Process(ctx, "user-1", turn("hi"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateDiscovery, res.FinalState)
	assert.Equal(t, 2, res.Step)
}

func TestProcess_StoreLoadFailureDegrades(t *testing.T) {
	rec := &recorder{}
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{Reply: "hi"}},
		&failingStore{SessionStore: memory.NewStore(), failLoad: true},
		orchestrator.WithEscalator(rec))

	res, err := o.Process(context.Background(), "user-1", turn("hello"))
	require.NoError(t, err)

	assert.True(t, res.ShouldEscalate)
	assert.NotEmpty(t, res.Reply)
}

func TestProcess_StoreSaveFailureStillReplies(t *testing.T) {
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply:         "Welcome!",
		ProposedState: domain.StateDiscovery,
	}}, &failingStore{SessionStore: memory.NewStore(), failSave: true})

	res, err := o.Process(context.Background(), "user-1", turn("hi"))
	require.NoError(t, err)

	assert.Equal(t, "Welcome!", res.Reply, "the generated reply survives a failed save")
	assert.True(t, res.ShouldEscalate)
}

func TestProcess_ModerationRejectionForcesComplaint(t *testing.T) {
	gen := &stubGenerator{resp: domain.GenerationResponse{
		Reply:         "Sure thing",
		ProposedState: domain.StateDiscovery,
	}}
	o := newOrchestrator(gen, memory.NewStore())

	res, err := o.Process(context.Background(), "user-1", domain.AggregatedTurn{
		Text:       "flagged content",
		Metadata:   map[string]any{"moderation_rejected": true},
		Generation: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateComplaint, res.FinalState)
	assert.True(t, res.ShouldEscalate)
	assert.Zero(t, gen.calls, "flagged content is never sent to a backend")
}

func TestProcess_OrderMilestoneNotifiesCRM(t *testing.T) {
	store := memory.NewStore()
	rec := &recorder{}

	// Seed a session already in size_color with a resolved draft.
	seed := domain.NewSessionState("user-1")
	seed.Current = domain.StateSizeColor
	seed.DialogPhase = domain.PhaseNeedsKnown
	require.NoError(t, domain.EncodeOrderDraft(seed.Metadata, domain.OrderDraft{
		ProductName: "runner sneaker", Size: "M", Color: "black", Quantity: 1,
	}))
	require.NoError(t, store.Save(context.Background(), "user-1", seed))

	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply:         "Here's my offer: $79 shipped.",
		ProposedState: domain.StateOffer,
	}}, store, orchestrator.WithOrderNotifier(rec))

	res, err := o.Process(context.Background(), "user-1", turn("sounds good"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateOffer, res.FinalState)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.orders, 1)
	assert.Equal(t, "runner sneaker", rec.orders[0].Draft.ProductName)
	assert.Equal(t, domain.StateOffer, rec.orders[0].State)
}

func TestProcess_CanceledContextDoesNoWork(t *testing.T) {
	store := memory.NewStore()
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{Reply: "hi"}}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Process(ctx, "user-1", turn("hello"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Load(context.Background(), "user-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "no session side effects for abandoned turns")
}

func TestReset_DeletesSession(t *testing.T) {
	store := memory.NewStore()
	o := newOrchestrator(&stubGenerator{resp: domain.GenerationResponse{
		Reply: "hello", ProposedState: domain.StateDiscovery,
	}}, store)
	ctx := context.Background()

	_, err := o.Process(ctx, "user-1", turn("hi"))
	require.NoError(t, err)

	require.NoError(t, o.Reset(ctx, "user-1"))
	_, err = store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
