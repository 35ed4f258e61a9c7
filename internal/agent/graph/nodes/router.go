package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/agri-chat-core/server/internal/agent/graph/conversations"
	"github.com/agri-chat-core/server/internal/agent/graph/parsers"
	"github.com/agri-chat-core/server/internal/agent/graph/prompts"
	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// NewRouteNode condenses and classifies the new user input.
func NewRouteNode(analyzer Analyzer, maxTurns int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.TurnState) (*model.Patch, error) {
		return Route(ctx, analyzer, maxTurns, in), nil
	})
}

// Route never fails. Model failures fall back to normal_qa so a real question
// is never dropped.
func Route(ctx context.Context, analyzer Analyzer, maxTurns int, st *model.TurnState) *model.Patch {
	raw := strings.TrimSpace(st.UserQuery)
	if st.HasImage() {
		return routed(raw, raw, model.QueryImageDisease)
	}
	if raw == "" {
		return routed(raw, "", model.QueryChitchat)
	}

	a, err := analyze(ctx, analyzer, maxTurns, st, raw)
	if err != nil {
		err = errx.Wrap(errx.KindClassification, err)
		metrics.CollaboratorFailures.WithLabelValues(string(errx.KindClassification)).Inc()
		logx.Warn().Err(err).Str("conversation_id", st.ConversationID).Msg("Router failed, falling back to normal_qa")
		return routed(raw, raw, model.QueryNormalQA)
	}

	condensed := a.CondensedQuery
	if condensed == "" {
		condensed = raw
	}
	logx.Debug().
		Str("conversation_id", st.ConversationID).
		Str("condensed_query", condensed).
		Str("query_type", string(a.QueryType)).
		Msg("Query routed")
	return routed(raw, condensed, a.QueryType)
}

func analyze(ctx context.Context, analyzer Analyzer, maxTurns int, st *model.TurnState, raw string) (a *parsers.Analysis, err error) {
	if analyzer == nil {
		return nil, fmt.Errorf("router model is not configured")
	}
	defer func() {
		if p := recover(); p != nil {
			a, err = nil, fmt.Errorf("router panic: %v", p)
		}
	}()

	history := conversations.RouterContext(conversations.Prior(st.Messages, st.UserQuery), maxTurns)
	msgs, err := prompts.RenderRouter(ctx, history, raw)
	if err != nil {
		return nil, err
	}
	a, err = analyzer.Analyze(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("router returned no analysis")
	}
	return a, nil
}

func routed(raw, condensed string, qt model.QueryType) *model.Patch {
	return &model.Patch{
		UserQuery:      model.Ptr(raw),
		CondensedQuery: model.Ptr(condensed),
		QueryType:      model.Ptr(qt),
	}
}
