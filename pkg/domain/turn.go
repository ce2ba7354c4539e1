package domain

import "time"

// BufferedFragment is one raw inbound message piece as handed to the
// debouncer by a channel adapter. Immutable once created; owned solely by
// the debouncer until aggregation.
type BufferedFragment struct {
	Text      string         `json:"text"`
	HasImage  bool           `json:"has_image"`
	ImageURL  string         `json:"image_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ArrivedAt time.Time      `json:"arrived_at"`

	// Seq is a per-user arrival sequence number assigned by the caller
	// (or by the debouncer when zero). It makes merge order deterministic
	// when two fragments carry the same wall-clock timestamp.
	Seq uint64 `json:"seq,omitempty"`
}

// AggregatedTurn is the merged result of one debounce window: the fragment
// texts joined in arrival order plus the last image seen, if any.
type AggregatedTurn struct {
	Text     string         `json:"text"`
	HasImage bool           `json:"has_image"`
	ImageURL string         `json:"image_url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Generation identifies which debounce window produced this turn.
	Generation uint64 `json:"generation"`
}

// IsEmpty reports whether the turn carries neither text nor an image.
// Empty turns still get a reply; the orchestrator substitutes a minimal
// fallback instead of dropping them.
func (t AggregatedTurn) IsEmpty() bool {
	return t.Text == "" && !t.HasImage
}
