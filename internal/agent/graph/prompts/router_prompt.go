package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

//go:embed template/router_user.txt
var routerUserPrompt string

// RenderRouter renders the condense-and-classify request via the Eino prompt
// component so prompt callbacks fire.
func RenderRouter(ctx context.Context, history, query string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(routerSystemPrompt),
		schema.UserMessage(routerUserPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"history": history,
		"query":   query,
	})
	if err != nil {
		return nil, fmt.Errorf("router prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("router prompt render: expected 2 messages, got %d", len(msgs))
	}
	return msgs, nil
}
