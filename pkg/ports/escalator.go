package ports

import (
	"context"

	"github.com/ordesk/ordesk/pkg/domain"
)

// Escalation describes a turn that requires human takeover.
type Escalation struct {
	SessionID string
	State     domain.StateID
	Reason    string
	UserText  string
}

// Escalator notifies a human-handoff collaborator (operator chat, CRM
// ticket). Implementations must be safe for concurrent use; failures are
// logged, never surfaced to the user-facing reply.
type Escalator interface {
	Escalate(ctx context.Context, esc Escalation) error
}

// OrderEvent describes a CRM-relevant milestone of the sales dialogue,
// handed to the side-effect layer after a turn commits.
type OrderEvent struct {
	SessionID string
	State     domain.StateID
	Draft     domain.OrderDraft
	Step      int
}

// OrderNotifier receives order-draft milestones (CRM status updates,
// order creation). A notifier failure must never fail the reply.
type OrderNotifier interface {
	NotifyOrder(ctx context.Context, ev OrderEvent) error
}
