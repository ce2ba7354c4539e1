package domain

// StateID identifies one state of the sales dialogue.
type StateID string

const (
	StateInit            StateID = "init"
	StateDiscovery       StateID = "discovery"
	StateVision          StateID = "vision"
	StateSizeColor       StateID = "size_color"
	StateOffer           StateID = "offer"
	StatePaymentDelivery StateID = "payment_delivery"
	StateUpsell          StateID = "upsell"
	StateEnd             StateID = "end"
	StateComplaint       StateID = "complaint"
	StateOutOfDomain     StateID = "out_of_domain"
)

// AllStates lists every dialogue state. Useful for exhaustive guard tests
// and for validating configuration.
var AllStates = []StateID{
	StateInit,
	StateDiscovery,
	StateVision,
	StateSizeColor,
	StateOffer,
	StatePaymentDelivery,
	StateUpsell,
	StateEnd,
	StateComplaint,
	StateOutOfDomain,
}

// IsValid reports whether s is one of the known dialogue states.
func (s StateID) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s closes the sales flow. Terminal states still
// accept follow-up messages, which re-enter discovery.
func (s StateID) IsTerminal() bool {
	return s == StateEnd || s == StateComplaint
}

// Message roles, mirroring the chat-completion convention used by the
// generative backends.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Dialog phase milestones recorded in SessionState.DialogPhase. Phases mark
// resolved milestones so the guard can refuse regressions even when the
// proposed state would otherwise be legal.
const (
	PhaseGreeting      = "greeting"
	PhaseNeedsKnown    = "needs_known"
	PhaseSizeResolved  = "size_color_resolved"
	PhaseOfferMade     = "offer_made"
	PhasePaymentAgreed = "payment_agreed"
	PhaseClosed        = "closed"
)

// SessionState captures one conversation between turns. It is loaded from
// the session store at the start of a turn and saved at the end; the
// conversation state machine is its only writer.
type SessionState struct {
	SessionID   string         `json:"session_id"`
	Messages    []Message      `json:"messages"`
	Current     StateID        `json:"current_state"`
	DialogPhase string         `json:"dialog_phase"`
	StepNumber  int            `json:"step_number"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewSessionState creates a fresh session starting at the initial state.
func NewSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:   sessionID,
		Messages:    []Message{},
		Current:     StateInit,
		DialogPhase: PhaseGreeting,
		Metadata:    make(map[string]any),
	}
}

// Clone returns a deep copy. Commit operates on a copy so a failed save
// never leaves a half-mutated session behind.
func (s *SessionState) Clone() *SessionState {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	out.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return &out
}
