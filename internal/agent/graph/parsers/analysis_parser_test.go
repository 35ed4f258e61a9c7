package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agri-chat-core/server/internal/agent/model"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantQuery string
		wantType  model.QueryType
		wantErr   bool
	}{
		{
			name:      "plain json",
			content:   `{"condensed_query":"Cách chữa bệnh đạo ôn cây lúa?","query_type":"normal_qa"}`,
			wantQuery: "Cách chữa bệnh đạo ôn cây lúa?",
			wantType:  model.QueryNormalQA,
		},
		{
			name:      "fenced with prose",
			content:   "Kết quả:\n```json\n{\"condensed_query\": \"cây lúa có vết hình thoi là bệnh gì?\", \"query_type\": \"text_disease\"}\n```\n",
			wantQuery: "cây lúa có vết hình thoi là bệnh gì?",
			wantType:  model.QueryTextDisease,
		},
		{
			name:      "label case and spaces normalized",
			content:   `{"condensed_query":" chào bạn ","query_type":" Chitchat "}`,
			wantQuery: "chào bạn",
			wantType:  model.QueryChitchat,
		},
		{name: "image label rejected", content: `{"condensed_query":"x","query_type":"image_disease"}`, wantErr: true},
		{name: "unknown label", content: `{"condensed_query":"x","query_type":"weather"}`, wantErr: true},
		{name: "no object", content: "normal_qa", wantErr: true},
		{name: "broken json", content: `{"condensed_query": "x", `, wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got.CondensedQuery)
			assert.Equal(t, tt.wantType, got.QueryType)
		})
	}
}

func TestParseAnalysisLimits(t *testing.T) {
	_, err := ParseAnalysis(strings.Repeat("a", maxContentLen+1))
	assert.Error(t, err)

	long := strings.Repeat("lúa ", maxQueryLen)
	got, err := ParseAnalysis(`{"condensed_query":"` + long + `","query_type":"normal_qa"}`)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.CondensedQuery), maxQueryLen)
}

func TestAnalysisSchema(t *testing.T) {
	s := AnalysisSchema()
	require.NotNil(t, s)
	assert.ElementsMatch(t, []string{"condensed_query", "query_type"}, s.Required)

	qt := s.Properties["query_type"]
	require.NotNil(t, qt)
	require.NotNil(t, qt.Value)
	assert.Equal(t, []any{"text_disease", "normal_qa", "chitchat"}, qt.Value.Enum)
	assert.NotContains(t, qt.Value.Enum, string(model.QueryImageDisease))

	// Every schema label is accepted by the parser.
	for _, l := range RouterLabels {
		a, err := ParseAnalysis(`{"condensed_query":"q","query_type":"` + string(l) + `"}`)
		require.NoError(t, err)
		assert.Equal(t, l, a.QueryType)
	}
}
