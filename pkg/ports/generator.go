package ports

import (
	"context"

	"github.com/ordesk/ordesk/pkg/domain"
)

// Generator is the generative backend behind one provider: given the
// transcript and the current dialogue state, it returns a candidate reply
// and a proposed next state. Implementations are treated as unreliable,
// latency-variable RPCs; the provider layer wraps them in timeouts and
// circuit breakers.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResponse, error)

	// Preflight performs a cheap, quota-preserving probe that distinguishes
	// "backend down" from "quota/billing exhausted" without committing to a
	// full generation.
	Preflight(ctx context.Context) error
}
