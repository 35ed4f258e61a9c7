package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/agri-chat-core/server/internal/agent/graph/parsers"
	"github.com/agri-chat-core/server/internal/agent/llm"
	"github.com/agri-chat-core/server/internal/agent/model"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	RouterCfg  *model.RouterModelConfig
	RespConfig *model.ResponseModelConfig
}

// ChatModels holds the router and response models behind the normalized
// llm.Client boundary, plus the shared genai client for embeddings.
type ChatModels struct {
	Router   *llm.Client
	Response *llm.Client
	Genai    *genai.Client
}

// NewChatModels creates both Gemini chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.RouterCfg == nil || config.RespConfig == nil {
		return nil, fmt.Errorf("model configs are nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	routerModel, err := gemini.NewChatModel(ctx, routerModelConfig(client, config.RouterCfg))
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	respMaxTokens := config.RespConfig.MaxTokens
	responseModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &respMaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Router:   llm.NewClient(routerModel, config.RouterCfg.Model, config.RouterCfg.Timeout),
		Response: llm.NewClient(responseModel, config.RespConfig.Model, config.RespConfig.Timeout),
		Genai:    client,
	}, nil
}

// routerModelConfig constrains the router to one JSON object matching
// parsers.AnalysisSchema; thinking is off.
func routerModelConfig(client *genai.Client, cfg *model.RouterModelConfig) *gemini.Config {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	return &gemini.Config{
		Client:         client,
		Model:          cfg.Model,
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
		ResponseSchema: parsers.AnalysisSchema(),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	}
}
