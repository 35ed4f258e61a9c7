package observers

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/agri-chat-core/server/internal/metrics"
)

func TestNodeCallbacksObserveOnlyLambdas(t *testing.T) {
	h := NewNodeCallbacks()
	node := &einocb.RunInfo{Name: "ObserverTestNode", Component: compose.ComponentOfLambda}
	chat := &einocb.RunInfo{Name: "Gemini", Component: components.ComponentOfChatModel}

	ctx := h.OnStart(context.Background(), node, nil)
	h.OnEnd(ctx, node, nil)
	ctx = h.OnStart(context.Background(), node, nil)
	h.OnError(ctx, node, errors.New("boom"))

	ctx = h.OnStart(context.Background(), chat, nil)
	h.OnEnd(ctx, chat, nil)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.NodeDuration))
}

func TestNodeCallbacksIgnoreEndWithoutStart(t *testing.T) {
	h := NewNodeCallbacks()
	node := &einocb.RunInfo{Name: "NeverStarted", Component: compose.ComponentOfLambda}
	assert.NotPanics(t, func() { h.OnEnd(context.Background(), node, nil) })
	assert.NotPanics(t, func() { h.OnEnd(context.Background(), nil, nil) })
}

func TestLastUserContent(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("  lá bị vàng  "),
		nil,
		schema.AssistantMessage("ok", nil),
	}
	assert.Equal(t, "lá bị vàng", lastUserContent(msgs))
	assert.Empty(t, lastUserContent(nil))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "cây", truncate("cây", 3))
	assert.Equal(t, "câ…", truncate("cây lúa", 2))
}

func TestNewAllCallbacks(t *testing.T) {
	assert.Len(t, NewAllCallbacks(), 2)
}
