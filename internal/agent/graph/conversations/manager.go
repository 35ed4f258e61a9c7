// Package conversations shapes stored conversation history into model input.
package conversations

import (
	"strings"

	"github.com/agri-chat-core/server/internal/agent/model"
)

// Prior returns the history that precedes the current turn: when the newest
// entry is the user message carrying current, it is excluded.
func Prior(messages []model.Message, current string) []model.Message {
	n := len(messages)
	if n > 0 && current != "" && messages[n-1].Role == model.RoleUser && messages[n-1].Content == current {
		return messages[:n-1]
	}
	return messages
}

// RouterContext renders the most recent maxTurns messages as the router's
// conversation context.
func RouterContext(messages []model.Message, maxTurns int) string {
	recent := trimTail(messages, maxTurns)

	var b strings.Builder
	for _, msg := range recent {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + content + ")\n")
		}
	}
	if b.Len() == 0 {
		return "(trống)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 {
		return nil
	}
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
