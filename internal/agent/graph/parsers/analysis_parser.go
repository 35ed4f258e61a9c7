package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxQueryLen   = 4 * 1024
	maxErrSnippet = 200
)

// Analysis is the structured router output.
type Analysis struct {
	CondensedQuery string
	QueryType      model.QueryType
}

type rawAnalysis struct {
	CondensedQuery string `json:"condensed_query"`
	QueryType      string `json:"query_type"`
}

// ParseAnalysis extracts {condensed_query, query_type} from a model reply.
// The reply may wrap the JSON object in prose or a ```json fence. Only the
// three text labels are accepted; image_disease is never produced by the model.
func ParseAnalysis(content string) (out *Analysis, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "analysis_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("analysis parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			out = nil
		}
	}()

	if len(content) > maxContentLen {
		return nil, fmt.Errorf("analysis too large: %d bytes", len(content))
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("analysis invalid utf8")
	}

	obj, ok := extractObject(content)
	if !ok {
		return nil, fmt.Errorf("no json object in analysis: %s", safeSnippet(content))
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	label := strings.ToLower(strings.TrimSpace(raw.QueryType))
	qt, err := model.ParseQueryType(label)
	if err != nil || qt == model.QueryImageDisease {
		return nil, fmt.Errorf("invalid query_type %q", safeSnippet(raw.QueryType))
	}

	condensed := strings.TrimSpace(raw.CondensedQuery)
	if len(condensed) > maxQueryLen {
		condensed = condensed[:maxQueryLen]
		for !utf8.ValidString(condensed) {
			condensed = condensed[:len(condensed)-1]
		}
	}

	return &Analysis{CondensedQuery: condensed, QueryType: qt}, nil
}

// extractObject returns the outermost {...} span, skipping code fences.
func extractObject(s string) (string, bool) {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	s = s[:maxErrSnippet]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}
