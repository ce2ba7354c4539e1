package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Metadata key under which the order draft lives in SessionState.Metadata.
const KeyOrderDraft = "order_draft"

// OrderDraft is the typed view of the order being assembled across the
// dialogue. It lives in SessionState.Metadata as a loose map (the store
// round-trips it through JSON) and is decoded on demand.
type OrderDraft struct {
	ProductID    string  `mapstructure:"product_id" json:"product_id,omitempty"`
	ProductName  string  `mapstructure:"product_name" json:"product_name,omitempty"`
	Size         string  `mapstructure:"size" json:"size,omitempty"`
	Color        string  `mapstructure:"color" json:"color,omitempty"`
	Quantity     int     `mapstructure:"quantity" json:"quantity,omitempty"`
	Price        float64 `mapstructure:"price" json:"price,omitempty"`
	PaymentKind  string  `mapstructure:"payment_kind" json:"payment_kind,omitempty"`
	DeliveryKind string  `mapstructure:"delivery_kind" json:"delivery_kind,omitempty"`
	Address      string  `mapstructure:"address" json:"address,omitempty"`
}

// SizeColorResolved reports whether both variant attributes are collected.
func (d OrderDraft) SizeColorResolved() bool {
	return d.Size != "" && d.Color != ""
}

// DecodeOrderDraft extracts the draft from session metadata. A missing or
// nil entry decodes to the zero draft.
func DecodeOrderDraft(meta map[string]any) (OrderDraft, error) {
	var draft OrderDraft
	raw, ok := meta[KeyOrderDraft]
	if !ok || raw == nil {
		return draft, nil
	}
	if err := mapstructure.Decode(raw, &draft); err != nil {
		return draft, fmt.Errorf("failed to decode order draft: %w", err)
	}
	return draft, nil
}

// EncodeOrderDraft writes the draft back into session metadata as a loose
// map, keeping the stored form JSON-friendly.
func EncodeOrderDraft(meta map[string]any, draft OrderDraft) error {
	out := make(map[string]any)
	if err := mapstructure.Decode(draft, &out); err != nil {
		return fmt.Errorf("failed to encode order draft: %w", err)
	}
	meta[KeyOrderDraft] = out
	return nil
}
