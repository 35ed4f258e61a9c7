package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agri-chat-core/server/internal/agent/graph"
	"github.com/agri-chat-core/server/internal/agent/model"
	"github.com/agri-chat-core/server/internal/agent/repo"
	"github.com/agri-chat-core/server/internal/chat"
	"github.com/agri-chat-core/server/internal/core"
	"github.com/agri-chat-core/server/internal/store"
	pkgelastic "github.com/agri-chat-core/server/pkg/elastic"
	logx "github.com/agri-chat-core/server/pkg/logger"
	pkgredis "github.com/agri-chat-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis       pkgredis.Config
	Elastic     pkgelastic.Config
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/chat.db"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router       model.RouterModelConfig
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
	Retrieval    model.RetrievalConfig
	Vision       model.VisionConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("Warning: Could not load .env file: %v\n", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		fmt.Printf("Failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Service:     "agri-chat-core",
	})

	if err := run(ctx, envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Demo failed")
	}
}

func run(ctx context.Context, envCfg AppConfig) error {
	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		return fmt.Errorf("initialise redis client: %w", err)
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis successfully")

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		return fmt.Errorf("invalid CONVERSATION_TTL %q: %w", envCfg.Conversation.TTL, err)
	}

	checkpoints := repo.NewRedisCheckpointStore(rdb, ttl)

	cfg := graph.Config{
		APIKey:         envCfg.APIKey,
		BaseURL:        envCfg.BaseURL,
		RouterModel:    envCfg.Router,
		ResponseModel:  envCfg.Response,
		ResponsePrompt: envCfg.Prompt,
		Conversation:   envCfg.Conversation,
		Retrieval:      envCfg.Retrieval,
		Vision:         envCfg.Vision,
		Checkpoints:    checkpoints,
	}

	if envCfg.Elastic.Enabled() {
		es, err := envCfg.Elastic.New()
		if err != nil {
			return fmt.Errorf("initialise elasticsearch client: %w", err)
		}
		cfg.Elastic = es
		logx.Info().Str("index", envCfg.Retrieval.Index).Msg("Connected to Elasticsearch successfully")
	}

	orchestrator, err := graph.BuildOrchestrator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	db, err := store.NewSQLite(envCfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	defer db.Close()

	if envCfg.MetricsAddr != "" {
		srv := serveMetrics(envCfg.MetricsAddr)
		defer srv.Shutdown(context.Background())
	}

	return runDemo(ctx, chat.NewService(orchestrator, db, checkpoints))
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	logx.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

func runDemo(ctx context.Context, svc *chat.Service) error {
	testQueries := []struct {
		description string
		query       string
	}{
		{description: "Greeting", query: "Chào bạn, tôi trồng lúa ở Đồng Tháp"},
		{description: "Text disease question", query: "Lá lúa bị đốm nâu hình thoi là bệnh gì?"},
		{description: "Follow-up treatment", query: "Vậy phun thuốc gì để trị?"},
		{description: "General farming question", query: "Bón phân cho lúa giai đoạn đẻ nhánh thế nào?"},
	}

	const userID = "demo-farmer"
	conversationID := ""

	for i, test := range testQueries {
		if err := ctx.Err(); err != nil {
			return err
		}
		logx.Info().Int("test", i+1).Str("description", test.description).Str("query", test.query).Msg("Processing")

		ev := svc.Process(ctx, chat.Request{
			UserID:         userID,
			ConversationID: conversationID,
			Text:           test.query,
		})
		if ev.Event != chat.EventEnd {
			return fmt.Errorf("test %d failed: %s", i+1, ev.Detail)
		}
		conversationID = ev.ConversationID

		fmt.Printf("\nTest %d: %s\nQuery: %q\nResponse: %s\n", i+1, test.description, test.query, ev.FinalMessage)
		fmt.Println("--------------------------------------------------")

		time.Sleep(500 * time.Millisecond)
	}

	history, err := svc.History(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	convs, err := svc.Conversations(ctx, userID)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	detections, err := svc.Detections(ctx, userID)
	if err != nil {
		return fmt.Errorf("list detections: %w", err)
	}
	logx.Info().
		Str("conversation_id", conversationID).
		Int("messages", len(history)).
		Int("conversations", len(convs)).
		Int("detections", len(detections)).
		Msg("All demo turns completed")

	if err := svc.DeleteConversation(ctx, userID, conversationID); err != nil {
		return fmt.Errorf("clean up demo conversation: %w", err)
	}
	return nil
}
