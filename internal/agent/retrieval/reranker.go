package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Scorer rates how relevant each passage is to the query. Scores are
// returned in passage order; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// HTTPReranker calls a cross-encoder served with the text-embeddings-inference
// rerank API: POST {base}/rerank.
type HTTPReranker struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPReranker(baseURL string, timeout time.Duration) *HTTPReranker {
	return &HTTPReranker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (r *HTTPReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(rerankRequest{Query: query, Texts: passages, RawScores: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(b))
	}

	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(hits) != len(passages) {
		return nil, fmt.Errorf("reranker scored %d of %d passages", len(hits), len(passages))
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(passages) || seen[h.Index] {
			return nil, fmt.Errorf("reranker returned invalid index %d", h.Index)
		}
		seen[h.Index] = true
		scores[h.Index] = h.Score
	}
	return scores, nil
}
