package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agri-chat-core/server/internal/agent/model"
)

func TestRouteGate(t *testing.T) {
	assert.Equal(t, NodeAnalyzeImage, RouteGate(model.QueryImageDisease))
	assert.Equal(t, NodeChitchat, RouteGate(model.QueryChitchat))
	assert.Equal(t, NodeRetrieve, RouteGate(model.QueryTextDisease))
	assert.Equal(t, NodeRetrieve, RouteGate(model.QueryNormalQA))
}

func TestConfidenceGate(t *testing.T) {
	cases := []struct {
		name string
		info *model.DiseaseInfo
		want string
	}{
		{"at threshold", &model.DiseaseInfo{Confidence: model.Ptr(0.70)}, NodeRetrieve},
		{"above", &model.DiseaseInfo{Confidence: model.Ptr(0.95)}, NodeRetrieve},
		{"just below", &model.DiseaseInfo{Confidence: model.Ptr(0.699)}, NodeRequestMoreInfo},
		{"zero", &model.DiseaseInfo{Confidence: model.Ptr(0.0)}, NodeRequestMoreInfo},
		{"absent", &model.DiseaseInfo{DiseaseDetected: model.DiseaseErrorProcessing}, NodeRequestMoreInfo},
		{"no info", nil, NodeRequestMoreInfo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConfidenceGate(tc.info))
		})
	}
}

func TestContextGate(t *testing.T) {
	good := model.RetrievalContext{RetrievedDocs: []string{"x"}, Sources: []string{"s"}, HasGoodContext: true}
	bad := model.RetrievalContext{}

	assert.Equal(t, NodeRequestClarification, ContextGate(bad, model.QueryTextDisease))
	assert.Equal(t, NodeRequestClarification, ContextGate(bad, model.QueryNormalQA))
	assert.Equal(t, NodeDiagnose, ContextGate(good, model.QueryTextDisease))
	assert.Equal(t, NodeDiagnose, ContextGate(good, model.QueryImageDisease))
	assert.Equal(t, NodeNormalQA, ContextGate(good, model.QueryNormalQA))
}

func TestMessages(t *testing.T) {
	msg := MoreInfoMessage(&model.DiseaseInfo{DiseaseDetected: "bệnh đạo ôn cây lúa", Confidence: model.Ptr(0.42)})
	assert.Contains(t, msg, "42.0%")
	assert.Contains(t, msg, "bệnh đạo ôn cây lúa")
	assert.Contains(t, msg, "ảnh khác")

	msg = MoreInfoMessage(&model.DiseaseInfo{DiseaseDetected: model.DiseaseErrorProcessing})
	assert.Contains(t, msg, "không xác định")
	assert.Contains(t, msg, model.DiseaseErrorProcessing)

	assert.Contains(t, ClarificationMessage("Lá cam bị xoăn"), `"Lá cam bị xoăn"`)
}
