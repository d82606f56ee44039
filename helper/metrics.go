package helper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports stage timings and token volumes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	chunksIndexed prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each answer pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens sent to and received from language models",
		}, []string{"stage", "direction"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls by stage and outcome",
		}, []string{"stage", "outcome"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector index",
		}),
	}

	for _, c := range []prometheus.Collector{m.stageDuration, m.tokens, m.llmCalls, m.chunksIndexed} {
		if err := reg.Register(c); err != nil {
			return nil, NewError("register collector", err)
		}
	}

	return m, nil
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// MeasureStage starts a timer for stage. The returned function stops it,
// records the observation and returns the elapsed time.
func (m *Metrics) MeasureStage(stage string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		m.ObserveStage(stage, d)
		return d
	}
}

func (m *Metrics) AddTokens(stage string, input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(stage, "input").Add(float64(input))
	m.tokens.WithLabelValues(stage, "output").Add(float64(output))
}

func (m *Metrics) CountLLMCall(stage string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) AddChunksIndexed(n int) {
	if m == nil {
		return
	}
	m.chunksIndexed.Add(float64(n))
}
