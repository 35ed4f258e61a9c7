package parsers

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agri-chat-core/server/internal/agent/model"
)

// RouterLabels are the query types the router model may return.
var RouterLabels = []model.QueryType{
	model.QueryTextDisease,
	model.QueryNormalQA,
	model.QueryChitchat,
}

// AnalysisSchema is the response schema for the router's structured output.
// ParseAnalysis still validates every reply.
func AnalysisSchema() *openapi3.Schema {
	labels := make([]any, 0, len(RouterLabels))
	for _, l := range RouterLabels {
		labels = append(labels, string(l))
	}

	s := openapi3.NewObjectSchema().
		WithProperty("condensed_query", openapi3.NewStringSchema()).
		WithProperty("query_type", openapi3.NewStringSchema().WithEnum(labels...))
	s.Required = []string{"condensed_query", "query_type"}
	return s
}
