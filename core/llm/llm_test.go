package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siherrmann/filingqa/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Complete sends temperature zero and json format", func(t *testing.T) {
		var received map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model":             "llama3.2:3b",
				"message":           map[string]string{"role": "assistant", "content": `{"intent":"find_data"}`},
				"done":              true,
				"prompt_eval_count": 42,
				"eval_count":        7,
			})
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.2:3b", time.Second)
		resp, err := client.Complete(ctx, Request{
			Messages:    []Message{{Role: RoleUser, Content: "hello"}},
			Temperature: 0,
			JSON:        true,
		})
		require.NoError(t, err)
		assert.Equal(t, `{"intent":"find_data"}`, resp.Content)
		assert.Equal(t, 42, resp.InputTokens)
		assert.Equal(t, 7, resp.OutputTokens)
		assert.Equal(t, "llama3.2:3b", resp.Model)

		assert.Equal(t, "json", received["format"])
		assert.Equal(t, false, received["stream"])
		options, ok := received["options"].(map[string]interface{})
		require.True(t, ok)
		temperature, ok := options["temperature"]
		assert.True(t, ok, "temperature must be sent even when zero")
		assert.Equal(t, 0.0, temperature)
	})

	t.Run("Complete returns status errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("model not loaded"))
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.2:3b", time.Second)
		_, err := client.Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "model not loaded")
	})
}

func TestOpenAIClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Complete sends auth and response format", func(t *testing.T) {
		var received map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			_, _ = w.Write([]byte(`{
				"model": "gpt-4o-mini",
				"choices": [{"message": {"role": "assistant", "content": "{}"}}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 2}
			}`))
		}))
		defer server.Close()

		client := NewOpenAIClient(server.URL+"/v1/", "secret", "gpt-4o-mini", time.Second)
		resp, err := client.Complete(ctx, Request{
			Messages:    []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}},
			Temperature: 0.1,
			JSON:        true,
		})
		require.NoError(t, err)
		assert.Equal(t, "{}", resp.Content)
		assert.Equal(t, 10, resp.InputTokens)
		assert.Equal(t, 2, resp.OutputTokens)

		assert.Equal(t, 0.1, received["temperature"])
		format, ok := received["response_format"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "json_object", format["type"])
		messages, ok := received["messages"].([]interface{})
		require.True(t, ok)
		assert.Len(t, messages, 2)
	})

	t.Run("Complete fails without choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		client := NewOpenAIClient(server.URL, "", "gpt-4o-mini", time.Second)
		_, err := client.Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})
}

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Model() string {
	return "stub"
}

func (s *stubClient) Complete(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: "ok", Model: "stub"}, nil
}

func TestBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("Breaker passes successful calls through", func(t *testing.T) {
		stub := &stubClient{}
		breaker := NewBreaker(stub, BreakerSettings{Name: "test"})

		resp, err := breaker.Complete(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.Equal(t, "stub", breaker.Model())
		assert.Equal(t, "closed", breaker.State())
	})

	t.Run("Breaker opens after consecutive failures", func(t *testing.T) {
		stub := &stubClient{err: errors.New("connection refused")}
		breaker := NewBreaker(stub, BreakerSettings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute})

		for i := 0; i < 2; i++ {
			_, err := breaker.Complete(ctx, Request{})
			assert.Error(t, err)
		}
		assert.Equal(t, "open", breaker.State())

		_, err := breaker.Complete(ctx, Request{})
		assert.Error(t, err)
		assert.Equal(t, 2, stub.calls, "open breaker must not call the backend")
	})

	t.Run("Breaker ignores cancelled contexts", func(t *testing.T) {
		stub := &stubClient{err: context.Canceled}
		breaker := NewBreaker(stub, BreakerSettings{Name: "test", ConsecutiveFailures: 1})

		_, err := breaker.Complete(ctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, "closed", breaker.State())
	})
}

func TestNewClient(t *testing.T) {
	t.Run("Valid providers", func(t *testing.T) {
		for _, provider := range []string{"ollama", "openai"} {
			client, err := NewClient(helper.LLMConfiguration{Provider: provider}, "model")
			require.NoError(t, err)
			assert.Equal(t, "model", client.Model())
		}
	})

	t.Run("Unsupported provider", func(t *testing.T) {
		_, err := NewClient(helper.LLMConfiguration{Provider: "bard"}, "model")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}
