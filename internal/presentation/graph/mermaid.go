package graph

import (
	"fmt"
	"strings"

	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/guard"
)

// Overlay contains dynamic session data to visualize on the graph.
type Overlay struct {
	VisitedStates []domain.StateID
	CurrentState  domain.StateID
}

// GenerateMermaid produces a Mermaid flowchart of the dialogue legality
// graph. Semantic shapes:
//   - init: ((circle))
//   - terminal states (end): [[subroutine]]
//   - collection states (discovery, vision, size_color): [/parallelogram/]
//   - everything else: [rectangle]
//
// Self-loops are omitted; every non-terminal state may re-enter itself.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, state := range domain.AllStates {
		opener, closer := "[", "]"
		switch {
		case state == domain.StateInit:
			opener, closer = "((", "))"
		case state.IsTerminal():
			opener, closer = "[[", "]]"
		case state == domain.StateDiscovery || state == domain.StateVision || state == domain.StateSizeColor:
			opener, closer = "[/", "/]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", state, opener, state, closer))

		for _, to := range guard.LegalTargets(state) {
			if to == state {
				continue
			}
			arrow := "-->"
			// Recovery edges out of terminal or off-track states are a
			// different flavor of move than forward sales progress.
			if state.IsTerminal() || state == domain.StateOutOfDomain {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", state, arrow, to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[domain.StateID]bool)
		for _, id := range overlay.VisitedStates {
			if !visitedSet[id] && id.IsValid() {
				visitedSet[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", id))
			}
		}
		if overlay.CurrentState != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", overlay.CurrentState))
		}
	}

	return sb.String()
}
