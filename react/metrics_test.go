package react

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.iteration()
	m.iteration()
	m.toolCall("readFile", ClassRead, nil)
	m.toolCall("readFile", ClassRead, NewToolError(KindValidation, errors.New("missing")))
	m.blocked(RuleRepeatRead)
	m.rejected()
	m.parseError()
	m.terminated(TerminationAnswered)
	m.rotated(true)
	m.rotated(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("readFile", "read", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("readFile", "read", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocks.WithLabelValues(string(RuleRepeatRead))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.terminations.WithLabelValues(string(TerminationAnswered))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotations.WithLabelValues("truncated")))

	n, err := testutil.GatherAndCount(reg, "reactor_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.iteration()
		m.toolCall("x", ClassOther, nil)
		m.blocked(RuleExactRepeat)
		m.rejected()
		m.parseError()
		m.terminated(TerminationBudgetExhausted)
		m.rotated(true)
	})
}
