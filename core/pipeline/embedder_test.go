package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEmbedder(t *testing.T) {
	t.Run("Generate embedding for text", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		embedding, err := embedder(context.Background(), "Net sales increased 2% year over year.")
		require.NoError(t, err)
		assert.Equal(t, DefaultEmbeddingDimension, len(embedding), "all-MiniLM-L6-v2 produces 384-dimensional embeddings")

		hasNonZero := false
		for _, val := range embedding {
			if val != 0 {
				hasNonZero = true
				break
			}
		}
		assert.True(t, hasNonZero, "Embedding should contain non-zero values")
	})

	t.Run("Canceled context is rejected", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping DefaultEmbedder test in short mode (requires model download)")
		}

		embedder, err := DefaultEmbedder()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = embedder(ctx, "text")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOllamaEmbedder(t *testing.T) {
	t.Run("Sends model and prompt and converts the vector", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embeddings", r.URL.Path)
			var req map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req["model"])
			assert.Equal(t, "risk factors", req["prompt"])
			_, _ = w.Write([]byte(`{"embedding":[0.5,-1,2]}`))
		}))
		defer server.Close()

		embedder := OllamaEmbedder(server.URL, "nomic-embed-text", 0)
		embedding, err := embedder(context.Background(), "risk factors")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, -1, 2}, embedding)
	})

	t.Run("Server error is returned", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		_, err := OllamaEmbedder(server.URL, "missing", 0)(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("Empty embedding is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}))
		defer server.Close()

		_, err := OllamaEmbedder(server.URL, "m", 0)(context.Background(), "x")
		assert.Error(t, err)
	})
}
