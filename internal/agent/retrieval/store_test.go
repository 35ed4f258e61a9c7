package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float64{f.vec}, nil
}

func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return es
}

func TestElasticStoreRetrieve(t *testing.T) {
	var got map[string]any
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agri_knowledge/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"hits":{"hits":[
			{"_id":"1","_score":0.92,"_source":{"content":"Đạo ôn hại lúa.","source":"benh_lua.pdf"}},
			{"_id":"2","_score":0.71,"_source":{"content":"Không có nguồn."}}
		]}}`))
	})
	store := NewElasticStore(es, "agri_knowledge", &fakeEmbedder{vec: []float64{0.1, 0.2}})

	docs, err := store.Retrieve(context.Background(), "đạo ôn", retriever.WithTopK(2))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Đạo ôn hại lúa.", docs[0].Content)
	assert.Equal(t, "benh_lua.pdf", docs[0].MetaData[metaSource])
	assert.InDelta(t, 0.92, docs[0].Score(), 1e-9)
	assert.Equal(t, defaultSource, docs[1].MetaData[metaSource])

	knn := got["knn"].(map[string]any)
	assert.Equal(t, "embedding", knn["field"])
	assert.EqualValues(t, 2, knn["k"])
	assert.EqualValues(t, 50, knn["num_candidates"])
	assert.Len(t, knn["query_vector"], 2)
}

func TestElasticStoreErrors(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
	})

	_, err := NewElasticStore(es, "missing", &fakeEmbedder{vec: []float64{1}}).Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "knn search failed")

	_, err = NewElasticStore(es, "", &fakeEmbedder{}).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMissingIndex)

	boom := errors.New("embedding quota")
	_, err = NewElasticStore(es, "idx", &fakeEmbedder{err: boom}).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}
