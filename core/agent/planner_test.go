package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner(t *testing.T) {
	ctx := context.Background()

	t.Run("Plan parses the object inside surrounding text", func(t *testing.T) {
		client := &stubClient{content: `Here is the plan:
{"intent": "compare_data", "tasks": [
  {"ticker": "aapl", "search_query": "total net sales"},
  {"ticker": "MSFT", "filing_type": "10-q", "search_query": "revenue", "timeframe": "latest_quarter"}
]}
Let me know if you need more.`}
		planner := NewPlanner(client, testLogger, nil)

		plan, err := planner.Plan(ctx, "Compare Apple and Microsoft revenue")
		require.NoError(t, err)
		assert.Equal(t, model.IntentCompareData, plan.Intent)
		require.Len(t, plan.Tasks, 2)
		assert.Equal(t, model.Task{Ticker: "AAPL", FilingType: "10-K", SearchQuery: "total net sales", Timeframe: model.TimeframeLatestAnnual}, plan.Tasks[0])
		assert.Equal(t, model.Task{Ticker: "MSFT", FilingType: "10-Q", SearchQuery: "revenue", Timeframe: model.TimeframeLatestQuarter}, plan.Tasks[1])
	})

	t.Run("Plan sends the system prompt at temperature zero in json mode", func(t *testing.T) {
		client := &stubClient{content: `{"intent":"find_data","tasks":[]}`}
		planner := NewPlanner(client, testLogger, nil)

		_, err := planner.Plan(ctx, "What is Apple's revenue?")
		require.NoError(t, err)
		require.Len(t, client.requests, 1)

		req := client.requests[0]
		assert.Equal(t, 0.0, req.Temperature)
		assert.True(t, req.JSON)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, plannerPrompt, req.Messages[0].Content)
		assert.Contains(t, req.Messages[0].Content, "search_query")
		assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is Apple's revenue?"}, req.Messages[1])
	})

	t.Run("Plan records the model call in the query metrics", func(t *testing.T) {
		client := &stubClient{content: `{"intent":"find_data","tasks":[{"ticker":"AAPL","search_query":"revenue"}]}`}
		planner := NewPlanner(client, testLogger, nil)
		metrics := &model.QueryMetrics{}

		_, err := planner.Plan(WithQueryMetrics(ctx, metrics), "Apple revenue")
		require.NoError(t, err)
		require.Len(t, metrics.LLMCalls, 1)
		assert.Equal(t, StagePlanner, metrics.LLMCalls[0].Stage)
		assert.Equal(t, "stub", metrics.LLMCalls[0].Model)
		in, out := metrics.Tokens()
		assert.Equal(t, 120, in)
		assert.Equal(t, 30, out)
	})

	t.Run("Plan fails without a JSON object", func(t *testing.T) {
		planner := NewPlanner(&stubClient{content: "I cannot help with that."}, testLogger, nil)
		_, err := planner.Plan(ctx, "hello")
		assert.ErrorIs(t, err, ErrPlanFailed)
	})

	t.Run("Plan fails on invalid JSON", func(t *testing.T) {
		planner := NewPlanner(&stubClient{content: `{"intent": "find_data", "tasks": [}`}, testLogger, nil)
		_, err := planner.Plan(ctx, "hello")
		assert.ErrorIs(t, err, ErrPlanFailed)
	})

	t.Run("Plan fails when the model call fails", func(t *testing.T) {
		client := &stubClient{err: errors.New("connection refused")}
		planner := NewPlanner(client, testLogger, nil)

		_, err := planner.Plan(ctx, "hello")
		assert.ErrorIs(t, err, ErrPlanFailed)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, 1, client.calls(), "a failed plan is not retried")
	})
}

func TestBraceSpan(t *testing.T) {
	span, ok := braceSpan(`text {"a": {"b": 1}} more`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, span)

	_, ok = braceSpan("no braces")
	assert.False(t, ok)

	_, ok = braceSpan("} backwards {")
	assert.False(t, ok)
}
