package model

import "context"

// CheckpointStore persists the last Turn State of a conversation so that the
// next turn can resume from it. The key is the conversation id.
type CheckpointStore interface {
	// Load returns the last saved state; found is false when none exists.
	Load(ctx context.Context, conversationID string) (state *TurnState, found bool, err error)

	// Save overwrites the snapshot for the state's conversation.
	Save(ctx context.Context, state *TurnState) error

	// Delete removes the snapshot for a conversation.
	Delete(ctx context.Context, conversationID string) error
}
