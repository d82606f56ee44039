package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

//go:embed prompts/planner.txt
var plannerPrompt string

// ErrPlanFailed is returned when the planner output cannot be used.
var ErrPlanFailed = errors.New("could not create a plan")

const StagePlanner = "planner"

// Planner turns a question into retrieval tasks.
type Planner struct {
	client  llm.Client
	prompt  string
	logger  *slog.Logger
	metrics *helper.Metrics
}

func NewPlanner(client llm.Client, logger *slog.Logger, metrics *helper.Metrics) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		client:  client,
		prompt:  plannerPrompt,
		logger:  logger,
		metrics: metrics,
	}
}

// Plan asks the model for a plan. Any failure, including output that
// is not a JSON object, returns an error wrapping ErrPlanFailed. There
// is no retry.
func (p *Planner) Plan(ctx context.Context, query string) (*model.Plan, error) {
	resp, err := p.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.prompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: 0,
		JSON:        true,
	})
	recordCall(ctx, p.metrics, StagePlanner, p.client.Model(), resp, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanFailed, err)
	}

	span, ok := braceSpan(resp.Content)
	if !ok {
		p.logger.Error("Planner returned no JSON object", slog.String("output", truncate(resp.Content, 500)))
		return nil, fmt.Errorf("%w: no JSON object in planner output", ErrPlanFailed)
	}

	plan := &model.Plan{}
	err = json.Unmarshal([]byte(span), plan)
	if err != nil {
		p.logger.Error("Planner returned invalid JSON", slog.String("error", err.Error()), slog.String("output", truncate(span, 500)))
		return nil, fmt.Errorf("%w: %v", ErrPlanFailed, err)
	}
	plan.Normalize()

	if len(plan.Tasks) == 0 {
		p.logger.Warn("Plan has no tasks", slog.String("query", query))
	}
	p.logger.Info("Created plan", slog.String("intent", string(plan.Intent)), slog.Any("tickers", plan.Tickers()))

	return plan, nil
}

// braceSpan returns the text from the first '{' to the last '}'.
func braceSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
