package domain

// GenerationRequest is what the provider layer sends to a generative
// backend: the transcript so far plus the state the dialogue is currently
// in. The backend answers with a candidate reply and a proposed next state.
type GenerationRequest struct {
	SessionID string         `json:"session_id"`
	Messages  []Message      `json:"messages"`
	State     StateID        `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GenerationResponse is the backend's candidate answer. ProposedState is
// advisory only: it must pass the transition guard before being committed.
type GenerationResponse struct {
	Reply         string  `json:"reply"`
	ProposedState StateID `json:"proposed_state"`
	Intent        string  `json:"intent,omitempty"`

	// Provider names which backend actually answered, for observability.
	Provider string `json:"provider,omitempty"`
}
