package helper

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Counters record tokens and calls", func(t *testing.T) {
		m, err := NewMetrics("test", prometheus.NewRegistry())
		require.NoError(t, err)

		m.AddTokens("planner", 120, 40)
		m.CountLLMCall("planner", nil)
		m.CountLLMCall("planner", errors.New("timeout"))
		m.AddChunksIndexed(5)

		assert.Equal(t, 120.0, testutil.ToFloat64(m.tokens.WithLabelValues("planner", "input")))
		assert.Equal(t, 40.0, testutil.ToFloat64(m.tokens.WithLabelValues("planner", "output")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("planner", "error")))
		assert.Equal(t, 5.0, testutil.ToFloat64(m.chunksIndexed))
	})

	t.Run("Registering twice on one registry fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := NewMetrics("test", reg)
		require.NoError(t, err)

		_, err = NewMetrics("test", reg)
		assert.Error(t, err)
	})

	t.Run("Nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.AddTokens("synthesizer", 1, 1)
			m.CountLLMCall("synthesizer", nil)
			m.AddChunksIndexed(1)
			stop := m.MeasureStage("synthesis")
			assert.GreaterOrEqual(t, stop(), time.Duration(0))
		})
	})
}
