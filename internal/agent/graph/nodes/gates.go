package nodes

import (
	"context"

	"github.com/agri-chat-core/server/internal/agent/model"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// ConfidenceThreshold is the minimum classifier confidence for an image
// detection to be trusted.
const ConfidenceThreshold = 0.70

// RouteGate picks the node after routing.
func RouteGate(qt model.QueryType) string {
	switch qt {
	case model.QueryImageDisease:
		return NodeAnalyzeImage
	case model.QueryChitchat:
		return NodeChitchat
	default:
		return NodeRetrieve
	}
}

// ConfidenceGate passes only detections with a known confidence at or above
// the threshold.
func ConfidenceGate(info *model.DiseaseInfo) string {
	if info == nil || info.Confidence == nil || *info.Confidence < ConfidenceThreshold {
		return NodeRequestMoreInfo
	}
	return NodeRetrieve
}

// ContextGate picks the answer strategy once retrieval is done.
func ContextGate(rc model.RetrievalContext, qt model.QueryType) string {
	if !rc.HasGoodContext {
		return NodeRequestClarification
	}
	if qt.IsDisease() {
		return NodeDiagnose
	}
	return NodeNormalQA
}

func NewRouteCondition() func(context.Context, *model.Patch) (string, error) {
	return func(ctx context.Context, _ *model.Patch) (string, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		next := RouteGate(st.QueryType)
		logx.Debug().Str("conversation_id", st.ConversationID).Str("query_type", string(st.QueryType)).
			Str("next", next).Msg("Routing")
		return next, nil
	}
}

func NewConfidenceCondition() func(context.Context, *model.Patch) (string, error) {
	return func(ctx context.Context, _ *model.Patch) (string, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		next := ConfidenceGate(st.DiseaseInfo)
		logx.Debug().Str("conversation_id", st.ConversationID).Str("confidence", model.FormatConfidence(confidenceOf(st.DiseaseInfo))).
			Str("next", next).Msg("Confidence gate")
		return next, nil
	}
}

func NewContextCondition() func(context.Context, *model.Patch) (string, error) {
	return func(ctx context.Context, _ *model.Patch) (string, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		next := ContextGate(st.Context, st.QueryType)
		logx.Debug().Str("conversation_id", st.ConversationID).Bool("has_good_context", st.Context.HasGoodContext).
			Str("next", next).Msg("Context gate")
		return next, nil
	}
}

func confidenceOf(info *model.DiseaseInfo) *float64 {
	if info == nil {
		return nil
	}
	return info.Confidence
}
