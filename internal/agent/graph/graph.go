package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/elastic/go-elasticsearch/v8"

	"github.com/agri-chat-core/server/internal/agent/graph/nodes"
	"github.com/agri-chat-core/server/internal/agent/graph/observers"
	"github.com/agri-chat-core/server/internal/agent/model"
	"github.com/agri-chat-core/server/internal/agent/retrieval"
	"github.com/agri-chat-core/server/internal/agent/vision"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// Runner executes one conversational turn.
type Runner interface {
	Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error)
}

// Config holds everything needed to compose the orchestrator end-to-end.
// This is a convenience layer over GraphConfig that also constructs the
// Gemini models and the retrieval and vision collaborators.
type Config struct {
	APIKey         string
	BaseURL        string
	RouterModel    model.RouterModelConfig
	ResponseModel  model.ResponseModelConfig
	ResponsePrompt model.ResponsePromptConfig
	Conversation   model.ConversationConfig
	Retrieval      model.RetrievalConfig
	Vision         model.VisionConfig
	Checkpoints    model.CheckpointStore
	Elastic        *elasticsearch.Client // nil disables the document store
}

// GraphConfig holds the collaborators the graph nodes call.
type GraphConfig struct {
	Router         nodes.Analyzer
	Responder      nodes.Generator
	Vision         nodes.ImageAnalyzer
	Retriever      nodes.KnowledgeRetriever
	ResponsePrompt model.ResponsePromptConfig
	RouterMaxTurns int
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.TurnState, *model.TurnState]
	errs   []error
}

// BuildOrchestrator builds every collaborator from cfg and returns a Runner.
func BuildOrchestrator(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		RouterCfg:  &cfg.RouterModel,
		RespConfig: &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Router:         cms.Router,
		Responder:      cms.Response,
		Vision:         vision.NewAdapter(vision.NewHTTPClassifier(cfg.Vision.ClassifierURL, cfg.Vision.Timeout), cfg.Vision),
		Retriever:      newRetriever(cfg, retrieval.NewGeminiEmbedder(cms.Genai, cfg.Retrieval.EmbeddingModel)),
		ResponsePrompt: cfg.ResponsePrompt,
		RouterMaxTurns: cfg.Conversation.Router.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Orchestrator built successfully")
	return NewOrchestrator(runnable, cfg.Checkpoints), nil
}

func newRetriever(cfg Config, embedder *retrieval.GeminiEmbedder) *retrieval.Retriever {
	rc := cfg.Retrieval

	// Unconfigured collaborators stay nil interfaces so the retriever skips them.
	var scorer retrieval.Scorer
	if rc.RerankerURL != "" {
		scorer = retrieval.NewHTTPReranker(rc.RerankerURL, rc.ScoreTimeout)
	}

	var web retrieval.WebSearcher
	if rc.BraveAPIKey != "" {
		b, err := retrieval.NewBraveSearch(rc.BraveAPIKey,
			retrieval.WithBraveLocale(rc.WebCountry, rc.WebLanguage),
			retrieval.WithBraveTimeout(rc.WebTimeout))
		if err != nil {
			logx.Warn().Err(err).Msg("Web search disabled")
		} else {
			web = b
		}
	}

	if cfg.Elastic == nil {
		logx.Warn().Msg("Elasticsearch not configured, retrieval will return empty context")
		return retrieval.NewRetriever(nil, scorer, web, rc)
	}
	return retrieval.NewRetriever(retrieval.NewElasticStore(cfg.Elastic, rc.Index, embedder), scorer, web, rc)
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.TurnState, *model.TurnState], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*model.TurnState, *model.TurnState](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()
	builder.addBranches()

	if err := errors.Join(builder.errs...); err != nil {
		logx.Error().Err(err).Msg("Error assembling graph")
		return nil, fmt.Errorf("error assembling graph: %w", err)
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph. Every node but Finalize
// returns a patch merged into the local state by the same post-handler.
func (b *GraphBuilder) addNodes() {
	cfg := b.config
	patchNodes := []struct {
		name   string
		lambda *compose.Lambda
	}{
		{nodes.NodeAnalyzeImage, nodes.NewAnalyzeImageNode(cfg.Vision)},
		{nodes.NodeRetrieve, nodes.NewRetrieveNode(cfg.Retriever)},
		{nodes.NodeRequestMoreInfo, nodes.NewRequestMoreInfoNode()},
		{nodes.NodeRequestClarification, nodes.NewRequestClarificationNode()},
		{nodes.NodeDiagnose, nodes.NewDiagnoseNode(cfg.Responder, cfg.ResponsePrompt)},
		{nodes.NodeNormalQA, nodes.NewNormalQANode(cfg.Responder, cfg.ResponsePrompt)},
		{nodes.NodeChitchat, nodes.NewChitchatNode(cfg.Responder, cfg.ResponsePrompt)},
	}

	b.add(b.graph.AddLambdaNode(nodes.NodeRoute,
		nodes.NewRouteNode(cfg.Router, cfg.RouterMaxTurns),
		compose.WithNodeName(nodes.NodeRoute),
		compose.WithStatePreHandler(nodes.NewSeedPreHandler()),
		compose.WithStatePostHandler(nodes.NewApplyPatchPostHandler()),
	))

	for _, n := range patchNodes {
		b.add(b.graph.AddLambdaNode(n.name, n.lambda,
			compose.WithNodeName(n.name),
			compose.WithStatePostHandler(nodes.NewApplyPatchPostHandler()),
		))
	}

	b.add(b.graph.AddLambdaNode(nodes.NodeFinalize, nodes.NewFinalizeNode(), compose.WithNodeName(nodes.NodeFinalize)))
}

// addEdges creates the unconditional connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRoute},
		{nodes.NodeFinalize, compose.END},
	}
	for _, t := range nodes.TerminalNodes {
		edges = append(edges, [2]string{t, nodes.NodeFinalize})
	}

	for _, edge := range edges {
		b.add(b.graph.AddEdge(edge[0], edge[1]))
	}
}

// addBranches wires the transition table; each condition delegates to a gate.
func (b *GraphBuilder) addBranches() {
	b.add(b.graph.AddBranch(nodes.NodeRoute, compose.NewGraphBranch(
		nodes.NewRouteCondition(),
		map[string]bool{
			nodes.NodeAnalyzeImage: true,
			nodes.NodeRetrieve:     true,
			nodes.NodeChitchat:     true,
		},
	)))

	b.add(b.graph.AddBranch(nodes.NodeAnalyzeImage, compose.NewGraphBranch(
		nodes.NewConfidenceCondition(),
		map[string]bool{
			nodes.NodeRetrieve:        true,
			nodes.NodeRequestMoreInfo: true,
		},
	)))

	b.add(b.graph.AddBranch(nodes.NodeRetrieve, compose.NewGraphBranch(
		nodes.NewContextCondition(),
		map[string]bool{
			nodes.NodeRequestClarification: true,
			nodes.NodeDiagnose:             true,
			nodes.NodeNormalQA:             true,
		},
	)))
}

func (b *GraphBuilder) add(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.TurnState, *model.TurnState], error) {
	// The longest path is Route, AnalyzeImage, Retrieve, a terminal, Finalize.
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Orchestrator runs turns against the compiled graph and checkpoints the
// resulting state per conversation. It is safe for concurrent use across
// conversations; turns of the same conversation must be serialized by the
// caller.
type Orchestrator struct {
	runnable    compose.Runnable[*model.TurnState, *model.TurnState]
	checkpoints model.CheckpointStore
}

var _ Runner = (*Orchestrator)(nil)

func NewOrchestrator(runnable compose.Runnable[*model.TurnState, *model.TurnState], checkpoints model.CheckpointStore) *Orchestrator {
	return &Orchestrator{runnable: runnable, checkpoints: checkpoints}
}

// Run executes one turn. On failure nothing is checkpointed and the error is
// an OrchestratorFailure.
func (o *Orchestrator) Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
	start := time.Now()
	log := logx.Component("orchestrator").With().Str("conversation_id", in.ConversationID).Logger()

	if strings.TrimSpace(in.ConversationID) == "" {
		return nil, o.fail("input", errors.New("conversation id is required"))
	}

	prior, found, err := o.checkpoints.Load(ctx, in.ConversationID)
	if err != nil {
		return nil, o.fail("checkpoint_load", err)
	}
	if !found {
		prior = nil
	}

	final, err := o.invoke(ctx, seed(prior, in))
	if err != nil {
		log.Error().Err(err).Msg("Turn aborted")
		return nil, o.fail("graph", err)
	}

	if err := o.checkpoints.Save(ctx, final); err != nil {
		return nil, o.fail("checkpoint_save", err)
	}

	msg, _ := final.Reply()
	out := &model.TurnOutput{
		ConversationID: final.ConversationID,
		FinalMessage:   msg.Content,
		QueryType:      final.QueryType,
		Terminal:       final.Terminal,
		DiseaseInfo:    final.DiseaseInfo,
		Sources:        final.Context.Sources,
	}

	metrics.TurnsCompleted.WithLabelValues(out.Terminal, string(out.QueryType)).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Str("query_type", string(out.QueryType)).
		Str("terminal", out.Terminal).
		Int("messages", len(final.Messages)).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")
	return out, nil
}

func (o *Orchestrator) invoke(ctx context.Context, st *model.TurnState) (final *model.TurnState, err error) {
	defer func() {
		if p := recover(); p != nil {
			final, err = nil, fmt.Errorf("graph panic: %v", p)
		}
	}()

	final, err = o.runnable.Invoke(ctx, st, compose.WithCallbacks(observers.NewAllCallbacks()...))
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("graph returned no state")
	}
	return final, nil
}

func (o *Orchestrator) fail(stage string, err error) error {
	metrics.TurnsFailed.WithLabelValues(stage).Inc()
	return errx.Turn(fmt.Errorf("%s: %w", stage, err))
}

// seed builds the initial state of a turn: prior messages plus the new user
// message, with every per-turn field reset.
func seed(prior *model.TurnState, in model.TurnInput) *model.TurnState {
	text := strings.TrimSpace(in.Text)
	st := &model.TurnState{
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		UserQuery:      text,
		ImageData:      in.ImageBase64,
		Context:        model.RetrievalContext{RetrievedDocs: []string{}, Sources: []string{}},
	}
	if prior != nil {
		st.Messages = slices.Clone(prior.Messages)
		if st.UserID == "" {
			st.UserID = prior.UserID
		}
	}
	if text != "" {
		st.Messages = append(st.Messages, model.UserMessage(text))
	}
	return st
}
