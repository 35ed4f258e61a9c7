package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/agri-chat-core/server/internal/agent/model"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

func NewAnalyzeImageNode(vision ImageAnalyzer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.Patch, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		var info *model.DiseaseInfo
		if vision != nil {
			info = vision.Analyze(ctx, st.ImageData)
		}
		if info == nil {
			info = &model.DiseaseInfo{PlantType: "Unknown", DiseaseDetected: model.DiseaseErrorProcessing}
		}

		logx.Debug().
			Str("conversation_id", st.ConversationID).
			Str("disease_detected", info.DiseaseDetected).
			Str("confidence", model.FormatConfidence(info.Confidence)).
			Msg("Image analysed")
		return &model.Patch{DiseaseInfo: info}, nil
	})
}
