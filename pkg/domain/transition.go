package domain

// Correction reasons recorded on TransitionResult when the guard rewrites
// a proposed transition.
const (
	ReasonIllegalJump     = "illegal_jump"
	ReasonPhaseRegression = "phase_regression"
	ReasonEscalation      = "escalation"
)

// TransitionRequest is the input to the transition guard. It is never
// mutated; the guard is a pure function over it.
type TransitionRequest struct {
	From       StateID `json:"from"`
	ProposedTo StateID `json:"proposed_to"`
	Intent     string  `json:"intent,omitempty"`
	UserText   string  `json:"user_text,omitempty"`

	// DialogPhase is the session's resolved-milestone marker, used to veto
	// regressions to already-completed collection states.
	DialogPhase string `json:"dialog_phase,omitempty"`

	// RetryCount is how many times the current step has already been
	// retried. Exceeding the configured maximum forces escalation.
	RetryCount int `json:"retry_count,omitempty"`

	// ModerationRejected marks the user message as rejected upstream.
	ModerationRejected bool `json:"moderation_rejected,omitempty"`
}

// TransitionResult is the guard's verdict. Corrected=true is not an error;
// it records that an invariant violation was repaired and is surfaced for
// observability.
type TransitionResult struct {
	FinalTo        StateID `json:"final_to"`
	Corrected      bool    `json:"corrected"`
	Reason         string  `json:"reason,omitempty"`
	ShouldEscalate bool    `json:"should_escalate,omitempty"`
}
