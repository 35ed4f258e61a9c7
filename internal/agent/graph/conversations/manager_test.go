package conversations

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agri-chat-core/server/internal/agent/model"
)

func TestPrior(t *testing.T) {
	msgs := []model.Message{
		model.UserMessage("Lá lúa có vết hình thoi"),
		model.AssistantMessage("Bạn trồng cây gì?"),
		model.UserMessage("trên cây lúa"),
	}
	assert.Len(t, Prior(msgs, "trên cây lúa"), 2)
	assert.Len(t, Prior(msgs, "khác"), 3)
	assert.Len(t, Prior(msgs, ""), 3)
	assert.Empty(t, Prior(nil, "x"))
}

func TestRouterContextWindow(t *testing.T) {
	var msgs []model.Message
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			msgs = append(msgs, model.UserMessage(fmt.Sprintf("hỏi %d", i)))
		} else {
			msgs = append(msgs, model.AssistantMessage(fmt.Sprintf("đáp %d", i)))
		}
	}

	got := RouterContext(msgs, 5)
	assert.NotContains(t, got, "hỏi 2")
	assert.Contains(t, got, "AssistantMessage(đáp 3)")
	assert.Contains(t, got, "UserMessage(hỏi 6)")
	assert.Contains(t, got, "AssistantMessage(đáp 7)")

	assert.Equal(t, "(trống)", RouterContext(nil, 5))
	assert.Equal(t, "(trống)", RouterContext(msgs, 0))
}
