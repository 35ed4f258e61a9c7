package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/agri-chat-core/server/internal/agent/model"
)

var (
	//go:embed template/diagnose_prompt.txt
	diagnoseSystemPrompt string
	//go:embed template/normal_qa_prompt.txt
	normalQASystemPrompt string
	//go:embed template/chitchat_prompt.txt
	chitchatSystemPrompt string
)

const noKnowledge = "(không có)"

// RenderDiagnose builds the diagnosis request from detection, retrieved
// passages and the condensed query.
func RenderDiagnose(ctx context.Context, cfg model.ResponsePromptConfig, state *model.TurnState) ([]*schema.Message, error) {
	vars := baseVars(cfg)
	vars["condensed_query"] = state.CondensedQuery
	vars["knowledge"] = joinKnowledge(state.Context.RetrievedDocs)
	vars["has_detection"] = state.QueryType == model.QueryImageDisease && state.DiseaseInfo != nil
	if state.DiseaseInfo != nil {
		vars["plant_type"] = state.DiseaseInfo.PlantType
		vars["disease"] = state.DiseaseInfo.DiseaseDetected
		vars["confidence"] = model.FormatConfidence(state.DiseaseInfo.Confidence)
	}
	return render(ctx, diagnoseSystemPrompt, userQuestion(state), vars)
}

// RenderNormalQA builds the grounded general-question request.
func RenderNormalQA(ctx context.Context, cfg model.ResponsePromptConfig, state *model.TurnState) ([]*schema.Message, error) {
	vars := baseVars(cfg)
	vars["knowledge"] = joinKnowledge(state.Context.RetrievedDocs)
	return render(ctx, normalQASystemPrompt, state.CondensedQuery, vars)
}

// RenderChitchat builds the persona-only request. No retrieval grounding.
func RenderChitchat(ctx context.Context, cfg model.ResponsePromptConfig, state *model.TurnState) ([]*schema.Message, error) {
	return render(ctx, chitchatSystemPrompt, state.UserQuery, baseVars(cfg))
}

func render(ctx context.Context, system, user string, vars map[string]any) ([]*schema.Message, error) {
	if strings.TrimSpace(user) == "" {
		user = "..."
	}
	// The user turn is appended after formatting so its text is never parsed
	// as a template.
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(system))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("response prompt render: empty result")
	}
	return append(msgs, schema.UserMessage(user)), nil
}

func baseVars(cfg model.ResponsePromptConfig) map[string]any {
	name := strings.TrimSpace(cfg.AssistantName)
	if name == "" {
		name = "trợ lý nông nghiệp"
	}
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = "tiếng Việt"
	}
	return map[string]any{
		"assistant_name": name,
		"language":       lang,
	}
}

func userQuestion(state *model.TurnState) string {
	if q := strings.TrimSpace(state.CondensedQuery); q != "" {
		return q
	}
	if state.DiseaseInfo != nil {
		return "Cây của tôi bị " + state.DiseaseInfo.DiseaseDetected + ", tôi nên làm gì?"
	}
	return state.UserQuery
}

func joinKnowledge(docs []string) string {
	if len(docs) == 0 {
		return noKnowledge
	}
	return strings.Join(docs, "\n\n")
}
