// Package retrieval gathers grounding passages for a turn: vector search,
// relevance filtering and a web search fallback.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

const (
	WebPrefix     = "[Web Search]: "
	defaultWebSrc = "Web"
)

// Retriever applies the relevance policy over the collaborators. The store
// may be nil, in which case every turn gets an empty context.
type Retriever struct {
	store  retriever.Retriever
	scorer Scorer
	web    WebSearcher
	cfg    model.RetrievalConfig
}

func NewRetriever(store retriever.Retriever, scorer Scorer, web WebSearcher, cfg model.RetrievalConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = 1
	}
	if cfg.WebMaxResults <= 0 {
		cfg.WebMaxResults = 1
	}
	return &Retriever{store: store, scorer: scorer, web: web, cfg: cfg}
}

// SearchQuery prefixes the condensed query with the detected disease label
// when one is known.
func SearchQuery(condensed string, disease *model.DiseaseInfo) string {
	if disease == nil {
		return condensed
	}
	return strings.TrimSpace(disease.DiseaseDetected + " " + condensed)
}

type passage struct {
	content string
	source  string
	score   float64
}

// Retrieve never fails; collaborator errors degrade to an empty context or to
// the web fallback.
func (r *Retriever) Retrieve(ctx context.Context, query string) model.RetrievalContext {
	if r.store == nil {
		logx.Warn().Msg("Document store not configured, skipping retrieval")
		return buildContext(nil)
	}

	docs, err := r.search(ctx, query)
	if err != nil {
		r.fail(errx.Wrap(errx.KindRetrieval, err), "Vector search failed")
		docs = nil
	}

	kept := r.filter(ctx, query, docs)
	if len(kept) == 0 {
		kept = r.webFallback(ctx, query)
	}

	rc := buildContext(kept)
	logx.Debug().
		Int("docs", len(rc.RetrievedDocs)).
		Bool("has_good_context", rc.HasGoodContext).
		Msg("Retrieval done")
	return rc
}

func (r *Retriever) search(ctx context.Context, query string) (docs []*schema.Document, err error) {
	ctx, cancel := withTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("document store panic: %v", p)
		}
	}()
	return r.store.Retrieve(ctx, query, retriever.WithTopK(r.cfg.TopK))
}

// filter scores every candidate, sorts by score descending and keeps the best
// passages strictly above the threshold.
func (r *Retriever) filter(ctx context.Context, query string, docs []*schema.Document) []passage {
	candidates := make([]passage, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		src, _ := d.MetaData[metaSource].(string)
		if src == "" {
			src = defaultSource
		}
		candidates = append(candidates, passage{content: d.Content, source: src, score: d.Score()})
	}
	if len(candidates) == 0 {
		return nil
	}

	if r.scorer != nil {
		scores, err := r.score(ctx, query, candidates)
		if err != nil {
			r.fail(errx.Wrap(errx.KindRetrieval, err), "Relevance scoring failed")
			return nil
		}
		for i := range candidates {
			candidates[i].score = scores[i]
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var kept []passage
	for _, c := range candidates {
		logx.Debug().Float64("score", c.score).Str("source", c.source).Msg("Candidate passage")
		if c.score > r.cfg.ScoreThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) > r.cfg.MaxPassages {
		kept = kept[:r.cfg.MaxPassages]
	}
	return kept
}

func (r *Retriever) score(ctx context.Context, query string, candidates []passage) (scores []float64, err error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ScoreTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			scores, err = nil, fmt.Errorf("scorer panic: %v", p)
		}
	}()

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.content
	}
	scores, err = r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(texts) {
		return nil, errors.New("scorer returned a different number of scores")
	}
	return scores, nil
}

func (r *Retriever) webFallback(ctx context.Context, query string) []passage {
	if r.web == nil {
		return nil
	}
	results, err := r.searchWeb(ctx, query)
	if err != nil {
		r.fail(errx.Wrap(errx.KindRetrieval, err), "Web search failed")
		return nil
	}

	var out []passage
	for _, res := range results {
		if len(out) == r.cfg.WebMaxResults {
			break
		}
		src := res.URL
		if src == "" {
			src = defaultWebSrc
		}
		out = append(out, passage{content: WebPrefix + res.Content, source: src})
	}
	return out
}

func (r *Retriever) searchWeb(ctx context.Context, query string) (results []WebResult, err error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WebTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			results, err = nil, fmt.Errorf("web search panic: %v", p)
		}
	}()
	return r.web.Search(ctx, query, r.cfg.WebMaxResults)
}

func (r *Retriever) fail(err error, msg string) {
	metrics.CollaboratorFailures.WithLabelValues(string(errx.KindRetrieval)).Inc()
	logx.Warn().Err(err).Msg(msg)
}

func buildContext(kept []passage) model.RetrievalContext {
	rc := model.RetrievalContext{
		RetrievedDocs: make([]string, 0, len(kept)),
		Sources:       make([]string, 0, len(kept)),
	}
	for _, p := range kept {
		rc.RetrievedDocs = append(rc.RetrievedDocs, p.content)
		rc.Sources = append(rc.Sources, p.source)
	}
	rc.HasGoodContext = len(rc.RetrievedDocs) > 0
	return rc
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
