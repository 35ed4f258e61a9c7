package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/agri-chat-core/server/internal/agent/graph/prompts"
	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// ApologyMessage is sent when the answer model fails or returns nothing.
const ApologyMessage = "Xin lỗi, tôi chưa thể tạo câu trả lời lúc này. Bạn vui lòng thử lại sau nhé 🌱"

type renderFunc func(context.Context, model.ResponsePromptConfig, *model.TurnState) ([]*schema.Message, error)

func NewDiagnoseNode(gen Generator, cfg model.ResponsePromptConfig) *compose.Lambda {
	return newAnswerNode(NodeDiagnose, gen, cfg, prompts.RenderDiagnose)
}

func NewNormalQANode(gen Generator, cfg model.ResponsePromptConfig) *compose.Lambda {
	return newAnswerNode(NodeNormalQA, gen, cfg, prompts.RenderNormalQA)
}

func NewChitchatNode(gen Generator, cfg model.ResponsePromptConfig) *compose.Lambda {
	return newAnswerNode(NodeChitchat, gen, cfg, prompts.RenderChitchat)
}

func newAnswerNode(node string, gen Generator, cfg model.ResponsePromptConfig, render renderFunc) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.Patch, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		text, err := answer(ctx, gen, cfg, render, st)
		if err != nil {
			err = errx.Wrap(errx.KindGeneration, err)
			metrics.CollaboratorFailures.WithLabelValues(string(errx.KindGeneration)).Inc()
			logx.Warn().Err(err).
				Str("conversation_id", st.ConversationID).
				Str("node", node).
				Msg("Answer generation failed, sending apology")
			text = ApologyMessage
		}
		return terminal(node, text), nil
	})
}

func answer(ctx context.Context, gen Generator, cfg model.ResponsePromptConfig, render renderFunc, st *model.TurnState) (text string, err error) {
	if gen == nil {
		return "", fmt.Errorf("response model is not configured")
	}
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("generator panic: %v", p)
		}
	}()

	msgs, err := render(ctx, cfg, st)
	if err != nil {
		return "", err
	}
	res, err := gen.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("empty answer")
	}
	return text, nil
}

func NewRequestMoreInfoNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.Patch, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return terminal(NodeRequestMoreInfo, MoreInfoMessage(st.DiseaseInfo)), nil
	})
}

func NewRequestClarificationNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.Patch, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return terminal(NodeRequestClarification, ClarificationMessage(st.CondensedQuery)), nil
	})
}

// MoreInfoMessage asks for a clearer photo or a symptom description, quoting
// the uncertain detection.
func MoreInfoMessage(info *model.DiseaseInfo) string {
	label := "không xác định"
	var conf *float64
	if info != nil {
		if info.DiseaseDetected != "" {
			label = info.DiseaseDetected
		}
		conf = info.Confidence
	}
	return fmt.Sprintf("Kết quả phân tích ảnh có độ tin cậy hơi thấp (%s cho bệnh %s).\n"+
		"Để chẩn đoán chính xác hơn, bạn vui lòng:\n"+
		"1. **Gửi một bức ảnh khác** (rõ nét hơn, đủ sáng, chụp gần khu vực bị bệnh).\n"+
		"2. **Hoặc mô tả thêm** về các triệu chứng bạn quan sát được.",
		model.FormatConfidence(conf), label)
}

// ClarificationMessage asks the user to rephrase when nothing relevant was
// found.
func ClarificationMessage(query string) string {
	return fmt.Sprintf("Rất tiếc, tôi không thể tìm thấy thông tin chính xác về \"%s\" trong cơ sở kiến thức của mình.\n\n"+
		"Bạn có thể vui lòng:\n"+
		"1. **Mô tả lại các triệu chứng** bằng từ ngữ khác?\n"+
		"2. **Kiểm tra lại tên** của loại bệnh/cây bạn đang hỏi?\n\n"+
		"Điều này sẽ giúp tôi tìm kiếm chính xác hơn.", query)
}
