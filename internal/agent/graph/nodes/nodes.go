package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/agri-chat-core/server/internal/agent/graph/parsers"
	"github.com/agri-chat-core/server/internal/agent/llm"
	"github.com/agri-chat-core/server/internal/agent/model"
)

// Node names. Terminal node names double as TurnState.Terminal values.
const (
	NodeRoute                = "Route"
	NodeAnalyzeImage         = "AnalyzeImage"
	NodeRetrieve             = "Retrieve"
	NodeRequestMoreInfo      = "RequestMoreInfo"
	NodeRequestClarification = "RequestClarification"
	NodeDiagnose             = "Diagnose"
	NodeNormalQA             = "NormalQA"
	NodeChitchat             = "Chitchat"
	NodeFinalize             = "Finalize"
)

// TerminalNodes lists every node that ends a turn with an assistant message.
var TerminalNodes = []string{
	NodeRequestMoreInfo,
	NodeRequestClarification,
	NodeDiagnose,
	NodeNormalQA,
	NodeChitchat,
}

// Analyzer is the structured router call.
type Analyzer interface {
	Analyze(ctx context.Context, msgs []*schema.Message) (*parsers.Analysis, error)
}

// Generator is the free-text answer call.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message) (llm.Result, error)
}

// ImageAnalyzer turns a base64 image into a detection. It never fails.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageB64 string) *model.DiseaseInfo
}

// KnowledgeRetriever gathers grounding passages. It never fails.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string) model.RetrievalContext
}

// NewSeedPreHandler copies the graph input into the local state so every
// later node reads from one place.
func NewSeedPreHandler() func(context.Context, *model.TurnState, *model.TurnState) (*model.TurnState, error) {
	return func(ctx context.Context, in *model.TurnState, s *model.TurnState) (*model.TurnState, error) {
		if in == nil {
			return nil, errNilInput
		}
		*s = *in.Clone()
		return in, nil
	}
}

// NewApplyPatchPostHandler merges a node's patch into the local state.
func NewApplyPatchPostHandler() func(context.Context, *model.Patch, *model.TurnState) (*model.Patch, error) {
	return func(ctx context.Context, out *model.Patch, s *model.TurnState) (*model.Patch, error) {
		if err := s.Apply(out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// NewFinalizeNode hands the merged state out of the graph once a terminal
// node has run.
func NewFinalizeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.TurnState, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if st.Terminal == "" {
			return nil, errors.New("turn ended without a terminal node")
		}
		if _, ok := st.Reply(); !ok {
			return nil, fmt.Errorf("terminal %s produced no assistant message", st.Terminal)
		}
		return st, nil
	})
}
