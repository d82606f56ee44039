package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/filingqa/helper"
)

const (
	DefaultEmbeddingModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultEmbeddingDimension = 384
)

// DefaultEmbedder creates an embedder using a real sentence transformer model
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings
func DefaultEmbedder() (EmbedFunc, error) {
	return HugotEmbedder(DefaultEmbeddingModel)
}

// HugotEmbedder runs a Hugging Face feature extraction model in process.
// The model is downloaded into helper.ModelDir on first use.
func HugotEmbedder(modelName string) (EmbedFunc, error) {
	modelPath, err := helper.PrepareModel(modelName, "")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	// The pipeline is not safe for concurrent use.
	var mu sync.Mutex

	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mu.Lock()
		result, err := sentencePipeline.RunPipeline([]string{text})
		mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}

// OllamaEmbedder calls the embeddings endpoint of an Ollama server.
func OllamaEmbedder(baseURL string, model string, timeout time.Duration) EmbedFunc {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	type embedRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	type embedResponse struct {
		Embedding []float64 `json:"embedding"`
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		jsonBody, err := json.Marshal(embedRequest{Model: model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
		}

		var embedResp embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if len(embedResp.Embedding) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		embedding := make([]float32, len(embedResp.Embedding))
		for i, v := range embedResp.Embedding {
			embedding[i] = float32(v)
		}
		return embedding, nil
	}
}
