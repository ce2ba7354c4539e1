package ports

import (
	"context"
	"testing"
	"time"

	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a
// SessionStore implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState(sessionID)
		state.Current = domain.StateOffer
		state.DialogPhase = domain.PhaseSizeResolved
		state.StepNumber = 4
		state.Messages = append(state.Messages,
			domain.Message{Role: domain.RoleUser, Content: "do you have it in black?"},
			domain.Message{Role: domain.RoleAssistant, Content: "We do. Size M or L?"},
		)
		state.Metadata["channel"] = "telegram"

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Current, loaded.Current)
		assert.Equal(t, state.DialogPhase, loaded.DialogPhase)
		assert.Equal(t, state.StepNumber, loaded.StepNumber)
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, "do you have it in black?", loaded.Messages[0].Content)
		assert.Equal(t, "telegram", loaded.Metadata["channel"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSessionState(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSessionState(sessionID))
		require.NoError(t, err)

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
	})
}
