// Package llm normalizes calls to the grounding language model. Whatever the
// provider returns, callers only ever see Result or parsers.Analysis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agri-chat-core/server/internal/agent/graph/parsers"
	"github.com/agri-chat-core/server/internal/agent/model"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Result is the normalized free-text reply.
type Result struct {
	Text string
}

type Client struct {
	chat      einomodel.BaseChatModel
	modelName string
	timeout   time.Duration
}

// NewClient wraps chat. A zero timeout disables the per-call deadline.
func NewClient(chat einomodel.BaseChatModel, modelName string, timeout time.Duration) *Client {
	return &Client{chat: chat, modelName: modelName, timeout: timeout}
}

// Generate runs one free-text call.
func (c *Client) Generate(ctx context.Context, msgs []*schema.Message) (Result, error) {
	if c == nil || c.chat == nil {
		return Result{}, fmt.Errorf("chat model is not configured")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Graph callbacks are re-scoped onto the model call so observers see it.
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      c.modelName,
		Type:      "Gemini",
		Component: components.ComponentOfChatModel,
	})

	out, err := c.chat.Generate(ctx, msgs)
	if err != nil {
		return Result{}, fmt.Errorf("generate with %s: %w", c.modelName, err)
	}
	if out == nil {
		return Result{}, ErrEmptyResponse
	}
	c.recordUsage(out)

	text := strings.TrimSpace(out.Content)
	if text == "" {
		return Result{}, ErrEmptyResponse
	}
	return Result{Text: text}, nil
}

// Analyze runs one structured call and decodes the router fields.
func (c *Client) Analyze(ctx context.Context, msgs []*schema.Message) (*parsers.Analysis, error) {
	res, err := c.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return parsers.ParseAnalysis(res.Text)
}

func (c *Client) recordUsage(out *schema.Message) {
	if out.ResponseMeta == nil {
		return
	}
	cost, ok := model.ComputeCost(c.modelName, out.ResponseMeta.Usage)
	if !ok {
		return
	}
	metrics.LLMCostUSD.WithLabelValues(c.modelName).Add(cost.TotalCost)
	logx.Debug().
		Str("model", cost.Model).
		Int("prompt_tokens", cost.PromptTokens).
		Int("completion_tokens", cost.CompletionTokens).
		Int("total_tokens", cost.TotalTokens).
		Float64("total_cost_usd", cost.TotalCost).
		Msg("LLM usage")
}
