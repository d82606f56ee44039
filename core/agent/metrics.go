package agent

import (
	"context"

	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

type queryMetricsKey struct{}

// WithQueryMetrics attaches m to ctx. Model calls made with the returned
// context are recorded in m.
func WithQueryMetrics(ctx context.Context, m *model.QueryMetrics) context.Context {
	return context.WithValue(ctx, queryMetricsKey{}, m)
}

// QueryMetricsFrom returns the metrics attached to ctx, or nil.
func QueryMetricsFrom(ctx context.Context) *model.QueryMetrics {
	m, _ := ctx.Value(queryMetricsKey{}).(*model.QueryMetrics)
	return m
}

func recordCall(ctx context.Context, metrics *helper.Metrics, stage string, modelName string, resp *llm.Response, err error) {
	metrics.CountLLMCall(stage, err)
	if resp == nil {
		return
	}
	metrics.AddTokens(stage, resp.InputTokens, resp.OutputTokens)

	name := resp.Model
	if name == "" {
		name = modelName
	}
	QueryMetricsFrom(ctx).AddLLMCall(model.LLMCall{
		Stage:        stage,
		Model:        name,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Latency:      resp.Latency,
	})
}
