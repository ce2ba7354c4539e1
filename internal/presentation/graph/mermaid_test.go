package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordesk/ordesk/internal/presentation/graph"
	"github.com/ordesk/ordesk/pkg/domain"
)

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := graph.GenerateMermaid(nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `init(("init"))`, "init is a circle")
	assert.Contains(t, out, `end[["end"]]`, "terminal state is a subroutine")
	assert.Contains(t, out, `discovery[/"discovery"/]`, "collection state is a parallelogram")
	assert.Contains(t, out, `offer["offer"]`)
}

func TestGenerateMermaid_EdgesFollowLegality(t *testing.T) {
	out := graph.GenerateMermaid(nil)

	assert.Contains(t, out, "init --> discovery")
	assert.Contains(t, out, "offer --> payment_delivery")
	assert.NotContains(t, out, "init --> payment_delivery")
	assert.NotContains(t, out, "discovery --> discovery", "self-loops are omitted")
	// Recovery edges render dotted.
	assert.Contains(t, out, "complaint -.-> discovery")
	assert.Contains(t, out, "end -.-> discovery")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(&graph.Overlay{
		VisitedStates: []domain.StateID{domain.StateDiscovery, domain.StateDiscovery, "bogus"},
		CurrentState:  domain.StateOffer,
	})

	assert.Equal(t, 1, strings.Count(out, "class discovery visited;"), "visited states deduplicated")
	assert.NotContains(t, out, "bogus", "unknown states are skipped")
	assert.Contains(t, out, "class offer current;")
}
