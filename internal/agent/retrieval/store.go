package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	metaSource     = "source"
	defaultSource  = "Local DB"
	minCandidates  = 50
	contentField   = "content"
	sourceField    = "source"
	embeddingField = "embedding"
)

var ErrMissingIndex = errors.New("index name is required")

// ElasticStore is a knn vector store over an Elasticsearch index whose
// documents carry content, source and a dense embedding.
type ElasticStore struct {
	client   *elasticsearch.Client
	index    string
	embedder embedding.Embedder
}

var _ retriever.Retriever = (*ElasticStore)(nil)

func NewElasticStore(client *elasticsearch.Client, index string, embedder embedding.Embedder) *ElasticStore {
	return &ElasticStore{client: client, index: index, embedder: embedder}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Content string `json:"content"`
				Source  string `json:"source"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Retrieve embeds the query and returns the top-k nearest passages.
func (s *ElasticStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if s.index == "" {
		return nil, ErrMissingIndex
	}
	options := retriever.GetCommonOptions(&retriever.Options{TopK: intPtr(2)}, opts...)
	k := 2
	if options.TopK != nil && *options.TopK > 0 {
		k = *options.TopK
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
	}

	body, err := json.Marshal(buildKNNQuery(vectors[0], k))
	if err != nil {
		return nil, fmt.Errorf("marshal knn query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("knn search failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]*schema.Document, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		src := hit.Source.Source
		if src == "" {
			src = defaultSource
		}
		doc := &schema.Document{
			ID:       hit.ID,
			Content:  hit.Source.Content,
			MetaData: map[string]any{metaSource: src},
		}
		docs = append(docs, doc.WithScore(hit.Score))
	}
	return docs, nil
}

func buildKNNQuery(vector []float64, k int) map[string]any {
	return map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          embeddingField,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(minCandidates, 10*k),
		},
		"_source": []string{contentField, sourceField},
	}
}

func intPtr(v int) *int { return &v }
