package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/agri-chat-core/server/internal/agent/model"
)

var errNilInput = errors.New("nil turn state")

// snapshot returns a private copy of the local graph state.
func snapshot(ctx context.Context) (*model.TurnState, error) {
	var st *model.TurnState
	err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
		st = s.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return st, nil
}

// terminal builds the patch of a node that ends the turn.
func terminal(node, text string) *model.Patch {
	return &model.Patch{
		Messages: []model.Message{model.AssistantMessage(text)},
		Terminal: model.Ptr(node),
	}
}
