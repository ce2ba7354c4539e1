// Package guard validates proposed dialogue transitions against a static
// legality table, repairing illegal jumps and phase regressions before the
// state machine commits them.
package guard

import "github.com/ordesk/ordesk/pkg/domain"

// legalMoves is the adjacency list keyed by the current state. A proposed
// state absent from its row is an illegal jump and is rejected in favor of
// staying put. Terminal states keep an edge back to discovery so follow-up
// messages can reopen the dialogue.
var legalMoves = map[domain.StateID][]domain.StateID{
	domain.StateInit: {
		domain.StateDiscovery, domain.StateVision,
		domain.StateOutOfDomain, domain.StateComplaint,
	},
	domain.StateDiscovery: {
		domain.StateDiscovery, domain.StateVision, domain.StateSizeColor,
		domain.StateOffer, domain.StateOutOfDomain, domain.StateComplaint,
		domain.StateEnd,
	},
	domain.StateVision: {
		domain.StateDiscovery, domain.StateSizeColor, domain.StateOffer,
		domain.StateComplaint, domain.StateOutOfDomain,
	},
	domain.StateSizeColor: {
		domain.StateSizeColor, domain.StateOffer, domain.StateDiscovery,
		domain.StateComplaint, domain.StateOutOfDomain,
	},
	domain.StateOffer: {
		domain.StateOffer, domain.StatePaymentDelivery, domain.StateSizeColor,
		domain.StateDiscovery, domain.StateComplaint, domain.StateOutOfDomain,
	},
	domain.StatePaymentDelivery: {
		domain.StatePaymentDelivery, domain.StateUpsell, domain.StateEnd,
		domain.StateComplaint, domain.StateOutOfDomain,
	},
	domain.StateUpsell: {
		domain.StateUpsell, domain.StateEnd, domain.StatePaymentDelivery,
		domain.StateComplaint,
	},
	domain.StateEnd: {
		domain.StateDiscovery, domain.StateEnd,
	},
	domain.StateComplaint: {
		domain.StateDiscovery, domain.StateComplaint,
	},
	domain.StateOutOfDomain: {
		domain.StateDiscovery, domain.StateOutOfDomain, domain.StateComplaint,
	},
}

// collectionStates are the states that gather variant details. Once the
// dialog phase marks size/color as resolved, regressing into them is vetoed.
var collectionStates = map[domain.StateID]bool{
	domain.StateDiscovery: true,
	domain.StateVision:    true,
	domain.StateSizeColor: true,
}

// Guard validates proposed transitions. It is deterministic and
// side-effect-free; a zero Guard with MaxRetries 0 escalates on the first
// retry, so construct via New.
type Guard struct {
	maxRetries int
}

// New creates a Guard. maxRetries is the number of times one step may be
// retried before the guard forces escalation.
func New(maxRetries int) *Guard {
	return &Guard{maxRetries: maxRetries}
}

// Check applies the guard algorithm:
//  1. retry exhaustion or upstream moderation rejection forces Complaint
//     with ShouldEscalate set, regardless of the proposal;
//  2. a jump absent from the legality table is replaced with the current
//     state (reason "illegal_jump");
//  3. a regression into a collection state after the dialog phase marked
//     size/color resolved is forced forward to Offer (reason
//     "phase_regression");
//  4. otherwise the proposal is accepted unchanged.
func (g *Guard) Check(req domain.TransitionRequest) domain.TransitionResult {
	if req.RetryCount > g.maxRetries || req.ModerationRejected {
		return domain.TransitionResult{
			FinalTo:        domain.StateComplaint,
			Corrected:      req.ProposedTo != domain.StateComplaint,
			Reason:         domain.ReasonEscalation,
			ShouldEscalate: true,
		}
	}

	if !g.IsLegal(req.From, req.ProposedTo) {
		return domain.TransitionResult{
			FinalTo:   req.From,
			Corrected: true,
			Reason:    domain.ReasonIllegalJump,
		}
	}

	if g.isPhaseRegression(req) {
		return domain.TransitionResult{
			FinalTo:   domain.StateOffer,
			Corrected: true,
			Reason:    domain.ReasonPhaseRegression,
		}
	}

	return domain.TransitionResult{FinalTo: req.ProposedTo}
}

// IsLegal reports whether the legality table contains the edge from -> to.
func (g *Guard) IsLegal(from, to domain.StateID) bool {
	for _, allowed := range legalMoves[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// isPhaseRegression reports whether the proposal moves back into a
// collection state although the phase marker says that milestone is done.
func (g *Guard) isPhaseRegression(req domain.TransitionRequest) bool {
	if !collectionStates[req.ProposedTo] {
		return false
	}
	switch req.DialogPhase {
	case domain.PhaseSizeResolved, domain.PhaseOfferMade, domain.PhasePaymentAgreed:
		// Offer must itself be reachable, otherwise forcing it forward would
		// trade one illegal move for another.
		return g.IsLegal(req.From, domain.StateOffer)
	}
	return false
}

// LegalTargets returns the states reachable from the given state. The slice
// is a copy; callers may mutate it freely.
func LegalTargets(from domain.StateID) []domain.StateID {
	targets := legalMoves[from]
	out := make([]domain.StateID, len(targets))
	copy(out, targets)
	return out
}
