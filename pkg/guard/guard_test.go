package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/guard"
)

func TestGuard_LegalMovesPassUnchanged(t *testing.T) {
	g := guard.New(3)

	// Idempotence: every edge in the legality table must pass without a
	// spurious correction.
	for _, from := range domain.AllStates {
		for _, to := range guard.LegalTargets(from) {
			res := g.Check(domain.TransitionRequest{From: from, ProposedTo: to})
			assert.Equal(t, to, res.FinalTo, "from=%s to=%s", from, to)
			assert.False(t, res.Corrected, "from=%s to=%s", from, to)
			assert.Empty(t, res.Reason)
		}
	}
}

func TestGuard_IllegalJumpRejected(t *testing.T) {
	g := guard.New(3)

	cases := []struct {
		from, to domain.StateID
	}{
		{domain.StateDiscovery, domain.StatePaymentDelivery}, // no intervening offer
		{domain.StateInit, domain.StateUpsell},
		{domain.StateInit, domain.StateEnd},
		{domain.StateVision, domain.StateUpsell},
		{domain.StateEnd, domain.StatePaymentDelivery},
	}

	for _, tc := range cases {
		res := g.Check(domain.TransitionRequest{From: tc.from, ProposedTo: tc.to})
		assert.True(t, res.Corrected, "from=%s to=%s", tc.from, tc.to)
		assert.Equal(t, tc.from, res.FinalTo, "illegal jump should stay put")
		assert.Equal(t, domain.ReasonIllegalJump, res.Reason)
	}
}

func TestGuard_NeverAcceptsIllegalProposal(t *testing.T) {
	g := guard.New(3)

	// Safety: for every pair NOT in the table, the result must not be the
	// proposal itself.
	for _, from := range domain.AllStates {
		for _, to := range domain.AllStates {
			if g.IsLegal(from, to) {
				continue
			}
			res := g.Check(domain.TransitionRequest{From: from, ProposedTo: to})
			assert.NotEqual(t, to, res.FinalTo, "from=%s to=%s", from, to)
			assert.True(t, res.Corrected)
		}
	}
}

func TestGuard_PhaseRegressionForcedForward(t *testing.T) {
	g := guard.New(3)

	res := g.Check(domain.TransitionRequest{
		From:        domain.StateOffer,
		ProposedTo:  domain.StateSizeColor,
		DialogPhase: domain.PhaseSizeResolved,
	})
	assert.True(t, res.Corrected)
	assert.Equal(t, domain.StateOffer, res.FinalTo)
	assert.Equal(t, domain.ReasonPhaseRegression, res.Reason)
}

func TestGuard_NoRegressionBeforeMilestone(t *testing.T) {
	g := guard.New(3)

	// Size/color not resolved yet: going back to collect is fine.
	res := g.Check(domain.TransitionRequest{
		From:        domain.StateOffer,
		ProposedTo:  domain.StateSizeColor,
		DialogPhase: domain.PhaseNeedsKnown,
	})
	assert.False(t, res.Corrected)
	assert.Equal(t, domain.StateSizeColor, res.FinalTo)
}

func TestGuard_RetryExhaustionForcesComplaint(t *testing.T) {
	g := guard.New(2)

	for _, proposed := range domain.AllStates {
		res := g.Check(domain.TransitionRequest{
			From:       domain.StateOffer,
			ProposedTo: proposed,
			RetryCount: 3,
		})
		assert.Equal(t, domain.StateComplaint, res.FinalTo, "proposed=%s", proposed)
		assert.True(t, res.ShouldEscalate, "proposed=%s", proposed)
	}
}

func TestGuard_ModerationRejectionForcesComplaint(t *testing.T) {
	g := guard.New(3)

	res := g.Check(domain.TransitionRequest{
		From:               domain.StateDiscovery,
		ProposedTo:         domain.StateOffer,
		ModerationRejected: true,
	})
	assert.Equal(t, domain.StateComplaint, res.FinalTo)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, domain.ReasonEscalation, res.Reason)
}

func TestGuard_TerminalStatesReenterDiscovery(t *testing.T) {
	g := guard.New(3)

	for _, terminal := range []domain.StateID{domain.StateEnd, domain.StateComplaint} {
		res := g.Check(domain.TransitionRequest{From: terminal, ProposedTo: domain.StateDiscovery})
		assert.False(t, res.Corrected, "from=%s", terminal)
		assert.Equal(t, domain.StateDiscovery, res.FinalTo)
	}
}
