package middleware_test

import (
	"context"
	"testing"

	"github.com/ordesk/ordesk/pkg/adapters/memory"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/persistence/middleware"
)

func TestPIIMiddleware_MasksMetadataKeys(t *testing.T) {
	store := memory.NewStore()
	mw := middleware.NewPIIMiddleware([]string{"(?i)phone", "card_number"}, nil)
	masked := mw(store)

	ctx := context.Background()
	state := domain.NewSessionState("s1")
	state.Metadata["Phone"] = "+1 555 0100"
	state.Metadata["card_number"] = "4111111111111111"
	state.Metadata["color"] = "red"
	state.Metadata["nested"] = map[string]any{"phone_home": "+1 555 0101"}

	if err := masked.Save(ctx, "s1", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Metadata["Phone"] != "***" {
		t.Errorf("Phone not masked: %v", stored.Metadata["Phone"])
	}
	if stored.Metadata["card_number"] != "***" {
		t.Errorf("card_number not masked: %v", stored.Metadata["card_number"])
	}
	if stored.Metadata["color"] != "red" {
		t.Errorf("color should be untouched: %v", stored.Metadata["color"])
	}
	nested := stored.Metadata["nested"].(map[string]any)
	if nested["phone_home"] != "***" {
		t.Errorf("nested phone not masked: %v", nested["phone_home"])
	}

	// In-memory state handed to Save keeps its raw values.
	if state.Metadata["Phone"] != "+1 555 0100" {
		t.Error("Save mutated the caller's state")
	}
}

func TestPIIMiddleware_RedactsMessageContent(t *testing.T) {
	store := memory.NewStore()
	mw := middleware.NewPIIMiddleware(nil, []string{`\+\d[\d\s-]{7,}\d`})
	masked := mw(store)

	ctx := context.Background()
	state := domain.NewSessionState("s1")
	state.Messages = append(state.Messages, domain.Message{
		Role:    domain.RoleUser,
		Content: "call me at +1 555-010-0199 after lunch",
	})

	if err := masked.Save(ctx, "s1", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got := stored.Messages[0].Content; got != "call me at *** after lunch" {
		t.Errorf("content not redacted: %q", got)
	}
}
