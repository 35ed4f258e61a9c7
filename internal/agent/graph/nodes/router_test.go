package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agri-chat-core/server/internal/agent/graph/parsers"
	"github.com/agri-chat-core/server/internal/agent/model"
)

type stubAnalyzer struct {
	out   *parsers.Analysis
	err   error
	calls int
	seen  []*schema.Message
}

func (s *stubAnalyzer) Analyze(ctx context.Context, msgs []*schema.Message) (*parsers.Analysis, error) {
	s.calls++
	s.seen = msgs
	return s.out, s.err
}

func turn(text string, prior ...model.Message) *model.TurnState {
	st := &model.TurnState{ConversationID: "c1", UserQuery: text, Messages: prior}
	if text != "" {
		st.Messages = append(st.Messages, model.UserMessage(text))
	}
	return st
}

func TestRouteImageShortCircuit(t *testing.T) {
	a := &stubAnalyzer{}
	st := turn("lá bị sao vậy")
	st.ImageData = "aGVsbG8="

	p := Route(context.Background(), a, 5, st)
	assert.Equal(t, model.QueryImageDisease, *p.QueryType)
	assert.Equal(t, "lá bị sao vậy", *p.CondensedQuery)
	assert.Equal(t, 0, a.calls)
}

func TestRouteEmptyInputIsChitchat(t *testing.T) {
	a := &stubAnalyzer{}
	p := Route(context.Background(), a, 5, turn("   "))
	assert.Equal(t, model.QueryChitchat, *p.QueryType)
	assert.Equal(t, "", *p.CondensedQuery)
	assert.Equal(t, 0, a.calls)
}

func TestRouteUsesAnalysis(t *testing.T) {
	a := &stubAnalyzer{out: &parsers.Analysis{CondensedQuery: "Cây lúa có vết hình thoi là bệnh gì?", QueryType: model.QueryTextDisease}}
	st := turn("trên cây lúa",
		model.UserMessage("Lá có vết hình thoi"),
		model.AssistantMessage("Bạn trồng cây gì?"),
	)

	p := Route(context.Background(), a, 5, st)
	assert.Equal(t, model.QueryTextDisease, *p.QueryType)
	assert.Equal(t, "Cây lúa có vết hình thoi là bệnh gì?", *p.CondensedQuery)
	assert.Equal(t, "trên cây lúa", *p.UserQuery)

	require.Len(t, a.seen, 2)
	assert.Contains(t, a.seen[1].Content, "UserMessage(Lá có vết hình thoi)")
	assert.Contains(t, a.seen[1].Content, "<current_message_to_analyze>\ntrên cây lúa")
	assert.NotContains(t, a.seen[1].Content, "UserMessage(trên cây lúa)")
}

func TestRouteFallbacks(t *testing.T) {
	cases := []struct {
		name     string
		analyzer Analyzer
	}{
		{"model error", &stubAnalyzer{err: errors.New("deadline exceeded")}},
		{"nil analysis", &stubAnalyzer{}},
		{"no analyzer", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Route(context.Background(), tc.analyzer, 5, turn("Cách bón phân cho lúa"))
			assert.Equal(t, model.QueryNormalQA, *p.QueryType)
			assert.Equal(t, "Cách bón phân cho lúa", *p.CondensedQuery)
		})
	}
}

func TestRouteEmptyCondensedKeepsRaw(t *testing.T) {
	a := &stubAnalyzer{out: &parsers.Analysis{QueryType: model.QueryChitchat}}
	p := Route(context.Background(), a, 5, turn("chào bạn"))
	assert.Equal(t, model.QueryChitchat, *p.QueryType)
	assert.Equal(t, "chào bạn", *p.CondensedQuery)
}
