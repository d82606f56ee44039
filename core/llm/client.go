package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/filingqa/helper"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Temperature is always sent, so zero
// means deterministic output and not "provider default".
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to constrain the output to one JSON object.
	JSON bool
}

type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Client is a chat completion backend.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// NewClient returns the adapter for the configured provider, serving
// model and guarded by a circuit breaker.
func NewClient(config helper.LLMConfiguration, model string) (Client, error) {
	var client Client
	switch config.Provider {
	case "ollama":
		client = NewOllamaClient(config.BaseURL, model, config.Timeout)
	case "openai":
		client = NewOpenAIClient(config.BaseURL, config.APIKey, model, config.Timeout)
	default:
		return nil, helper.NewError("create llm client", fmt.Errorf("unsupported provider %q", config.Provider))
	}
	return NewBreaker(client, BreakerSettings{Name: config.Provider + ":" + model}), nil
}
