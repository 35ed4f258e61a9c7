package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/agri-chat-core/server/internal/agent/model"
	"github.com/agri-chat-core/server/internal/agent/retrieval"
)

func NewRetrieveNode(r KnowledgeRetriever) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Patch) (*model.Patch, error) {
		st, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		rc := model.RetrievalContext{RetrievedDocs: []string{}, Sources: []string{}}
		if r != nil {
			rc = r.Retrieve(ctx, retrieval.SearchQuery(st.CondensedQuery, st.DiseaseInfo))
		}
		return &model.Patch{Context: &rc}, nil
	})
}
