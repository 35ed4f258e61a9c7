package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "leaf.jpg", hdr.Filename)
		assert.Equal(t, jpeg, data)
		json.NewEncoder(w).Encode(Prediction{Label: "bệnh đạo ôn cây lúa", Confidence: 0.93})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(path, jpeg, 0o600))

	c := NewHTTPClassifier(srv.URL+"/", time.Second)
	pred, err := c.Classify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "bệnh đạo ôn cây lúa", pred.Label)
	assert.InDelta(t, 0.93, pred.Confidence, 1e-9)
}

func TestHTTPClassifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(path, jpeg, 0o600))

	c := NewHTTPClassifier(srv.URL, time.Second)
	_, err := c.Classify(context.Background(), path)
	assert.ErrorContains(t, err, "503")

	_, err = c.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
