// Package orchestrator wires the turn pipeline: it receives an aggregated
// turn, loads the session, invokes the provider layer, passes the proposed
// transition through the guard, commits the result and reports it outward.
//
// Process never lets a released turn end without a reply: provider or
// store failures degrade to a canned handoff message with the escalation
// flag set, they do not crash the turn.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ordesk/ordesk/internal/logging"
	"github.com/ordesk/ordesk/pkg/conversation"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/effects"
	"github.com/ordesk/ordesk/pkg/guard"
	"github.com/ordesk/ordesk/pkg/observability"
	"github.com/ordesk/ordesk/pkg/ports"
	"github.com/ordesk/ordesk/pkg/provider"
)

// Canned replies for degraded turns. The user always receives some answer.
const (
	emptyTurnReply = "Sorry, I didn't catch that — could you say it again?"
	handoffReply   = "I'm having trouble answering right now. A colleague will take over this conversation shortly."
)

// Metadata keys the orchestrator maintains on the session.
const (
	keyRetryCount         = "retry_count"
	keyModerationRejected = "moderation_rejected"
)

// TurnResult is the committed outcome of one turn, returned to the channel
// layer for delivery and side effects.
type TurnResult struct {
	Reply          string         `json:"reply"`
	FinalState     domain.StateID `json:"final_state"`
	ShouldEscalate bool           `json:"should_escalate"`
	Corrected      bool           `json:"corrected,omitempty"`
	CorrectionWhy  string         `json:"correction_reason,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Step           int            `json:"step"`
}

// Orchestrator is the root of the turn pipeline.
type Orchestrator struct {
	machine   *conversation.Machine
	invoker   *provider.Invoker
	guard     *guard.Guard
	pool      *effects.Pool
	escalator ports.Escalator
	notifier  ports.OrderNotifier
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEffectsPool hands side effects to the given bounded pool. Without a
// pool, escalation and order notifications run inline but stay non-fatal.
func WithEffectsPool(pool *effects.Pool) Option {
	return func(o *Orchestrator) {
		o.pool = pool
	}
}

// WithEscalator registers the human-handoff collaborator.
func WithEscalator(esc ports.Escalator) Option {
	return func(o *Orchestrator) {
		o.escalator = esc
	}
}

// WithOrderNotifier registers the CRM/order collaborator.
func WithOrderNotifier(n ports.OrderNotifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithMetrics attaches the pipeline collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates the orchestrator over its three collaborators.
func New(machine *conversation.Machine, invoker *provider.Invoker, g *guard.Guard, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		machine: machine,
		invoker: invoker,
		guard:   g,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process drives one aggregated turn through the pipeline under the
// session lock. The returned TurnResult always carries a reply; the error
// is non-nil only when even the degraded path could not produce one
// (context canceled before any work happened).
func (o *Orchestrator) Process(ctx context.Context, userID string, turn domain.AggregatedTurn) (TurnResult, error) {
	start := time.Now()
	var res TurnResult

	err := o.machine.WithLock(ctx, userID, func(ctx context.Context) error {
		var err error
		res, err = o.processLocked(ctx, userID, turn)
		return err
	})
	if err != nil {
		return res, err
	}

	if o.metrics != nil {
		o.metrics.TurnDurationSeconds.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if res.ShouldEscalate {
			outcome = "escalated"
		}
		o.metrics.TurnsTotal.WithLabelValues(string(res.FinalState), outcome).Inc()
		if res.Corrected {
			o.metrics.GuardCorrections.WithLabelValues(res.CorrectionWhy).Inc()
		}
		if res.ShouldEscalate {
			o.metrics.Escalations.Inc()
		}
	}
	return res, nil
}

func (o *Orchestrator) processLocked(ctx context.Context, userID string, turn domain.AggregatedTurn) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		// Superseded or abandoned upstream: do no work at all.
		return TurnResult{}, err
	}

	state, err := o.machine.LoadOrStart(ctx, userID)
	if err != nil {
		// Store unavailable. The user still gets a reply, flagged for a
		// human to pick up.
		o.logger.Error("session load failed", "session_id", userID, "err", err)
		return o.degraded(ctx, userID, domain.StateComplaint), nil
	}

	if turn.IsEmpty() {
		return o.commitTurn(ctx, state, "", domain.GenerationResponse{Reply: emptyTurnReply},
			domain.TransitionResult{FinalTo: state.Current})
	}

	// Flagged content never reaches a backend; the guard turns the
	// rejection into an escalated Complaint below.
	var resp domain.GenerationResponse
	if moderationRejected(turn) {
		resp = domain.GenerationResponse{Reply: handoffReply, ProposedState: state.Current}
	} else {
		resp, err = o.invoker.Invoke(ctx, domain.GenerationRequest{
			SessionID: state.SessionID,
			Messages:  append(historyCopy(state), domain.Message{Role: domain.RoleUser, Content: turn.Text}),
			State:     state.Current,
			Metadata:  turn.Metadata,
		})
		if err != nil {
			if ctx.Err() != nil {
				// Abandoned mid-flight (supersession/cancel): no side effects.
				return TurnResult{}, ctx.Err()
			}
			o.logger.Error("generation failed on all providers", "session_id", userID, "err", err)
			state.Metadata[keyRetryCount] = retryCount(state) + 1
			return o.commitTurn(ctx, state, turn.Text,
				domain.GenerationResponse{Reply: handoffReply},
				domain.TransitionResult{
					FinalTo:        domain.StateComplaint,
					Reason:         domain.ReasonEscalation,
					ShouldEscalate: true,
				})
		}
	}

	verdict := o.guard.Check(domain.TransitionRequest{
		From:               state.Current,
		ProposedTo:         resp.ProposedState,
		Intent:             resp.Intent,
		UserText:           turn.Text,
		DialogPhase:        state.DialogPhase,
		RetryCount:         retryCount(state),
		ModerationRejected: moderationRejected(turn),
	})
	if verdict.ShouldEscalate {
		resp.Reply = handoffReply
	}

	state.Metadata[keyRetryCount] = 0
	return o.commitTurn(ctx, state, turn.Text, resp, verdict)
}

// commitTurn persists the turn and fans out side effects. A failing save
// degrades to an escalated reply instead of an error.
func (o *Orchestrator) commitTurn(
	ctx context.Context,
	state *domain.SessionState,
	userText string,
	resp domain.GenerationResponse,
	verdict domain.TransitionResult,
) (TurnResult, error) {
	committed, err := o.machine.Commit(ctx, state, userText, resp, verdict)
	if err != nil {
		o.logger.Error("commit failed, replying without persistence",
			"session_id", state.SessionID, "err", err)
		res := o.degraded(ctx, state.SessionID, verdict.FinalTo)
		res.Reply = resp.Reply
		return res, nil
	}

	res := TurnResult{
		Reply:          resp.Reply,
		FinalState:     committed.Current,
		ShouldEscalate: verdict.ShouldEscalate,
		Corrected:      verdict.Corrected,
		CorrectionWhy:  verdict.Reason,
		Provider:       resp.Provider,
		Step:           committed.StepNumber,
	}

	if verdict.Corrected {
		o.logger.Info("transition corrected",
			"session_id", state.SessionID,
			"from", state.Current,
			"proposed", resp.ProposedState,
			"final", verdict.FinalTo,
			"reason", verdict.Reason,
		)
	}

	o.fanOut(committed, userText, verdict)
	return res, nil
}

// fanOut hands CRM/escalation work to the pool; the turn result does not
// depend on their completion.
func (o *Orchestrator) fanOut(committed *domain.SessionState, userText string, verdict domain.TransitionResult) {
	if o.escalator != nil && verdict.ShouldEscalate {
		esc := ports.Escalation{
			SessionID: committed.SessionID,
			State:     committed.Current,
			Reason:    verdict.Reason,
			UserText:  userText,
		}
		o.submitEffect("escalate", func(ctx context.Context) error {
			return o.escalator.Escalate(ctx, esc)
		})
	}

	if o.notifier != nil && orderMilestone(committed.Current) {
		draft, err := domain.DecodeOrderDraft(committed.Metadata)
		if err != nil {
			o.logger.Warn("order draft undecodable, skipping notification",
				"session_id", committed.SessionID, "err", err)
			return
		}
		ev := ports.OrderEvent{
			SessionID: committed.SessionID,
			State:     committed.Current,
			Draft:     draft,
			Step:      committed.StepNumber,
		}
		o.submitEffect("notify-order", func(ctx context.Context) error {
			return o.notifier.NotifyOrder(ctx, ev)
		})
	}
}

func (o *Orchestrator) submitEffect(name string, fn func(context.Context) error) {
	if o.pool != nil {
		o.pool.Submit(name, fn)
		return
	}
	// No pool configured: run inline with a short budget, still non-fatal.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		o.logger.Warn("side effect failed", "task", name, "err", err)
	}
}

// degraded builds the canned handoff result used when the pipeline cannot
// answer properly.
func (o *Orchestrator) degraded(ctx context.Context, sessionID string, state domain.StateID) TurnResult {
	if o.escalator != nil {
		esc := ports.Escalation{
			SessionID: sessionID,
			State:     state,
			Reason:    domain.ReasonEscalation,
		}
		o.submitEffect("escalate", func(ctx context.Context) error {
			return o.escalator.Escalate(ctx, esc)
		})
	}
	return TurnResult{
		Reply:          handoffReply,
		FinalState:     state,
		ShouldEscalate: true,
	}
}

// Reset deletes the session so the next message starts a fresh dialogue.
func (o *Orchestrator) Reset(ctx context.Context, userID string) error {
	return o.machine.Delete(ctx, userID)
}

// Preflight delegates to the provider layer.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	return o.invoker.Preflight(ctx)
}

// ProviderStatuses exposes breaker snapshots for admin surfaces.
func (o *Orchestrator) ProviderStatuses() []provider.Status {
	return o.invoker.Statuses()
}

// ResetBreaker delegates manual breaker recovery.
func (o *Orchestrator) ResetBreaker(name string) error {
	return o.invoker.ResetBreaker(name)
}

// Sessions lists active session IDs.
func (o *Orchestrator) Sessions(ctx context.Context) ([]string, error) {
	return o.machine.List(ctx)
}

func historyCopy(state *domain.SessionState) []domain.Message {
	out := make([]domain.Message, len(state.Messages))
	copy(out, state.Messages)
	return out
}

func retryCount(state *domain.SessionState) int {
	switch v := state.Metadata[keyRetryCount].(type) {
	case int:
		return v
	case float64: // JSON round-trip
		return int(v)
	default:
		return 0
	}
}

func moderationRejected(turn domain.AggregatedTurn) bool {
	v, ok := turn.Metadata[keyModerationRejected].(bool)
	return ok && v
}

// orderMilestone reports whether a state change is worth a CRM update.
func orderMilestone(state domain.StateID) bool {
	switch state {
	case domain.StateOffer, domain.StatePaymentDelivery, domain.StateUpsell, domain.StateEnd:
		return true
	}
	return false
}
