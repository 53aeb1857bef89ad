package react

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the loop's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	iterations   prometheus.Counter
	toolCalls    *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	rejections   prometheus.Counter
	parseErrors  prometheus.Counter
	terminations *prometheus.CounterVec
	rotations    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactor_loop_iterations_total",
			Help: "Loop iterations entered",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_tool_calls_total",
			Help: "Tool executions by tool, class and status",
		}, []string{"tool", "class", "status"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_repetition_blocks_total",
			Help: "Tool calls blocked by the repetition guard, by rule",
		}, []string{"rule"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactor_conclusions_rejected_total",
			Help: "Final answers rejected for insufficient evidence",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactor_parse_errors_total",
			Help: "Model outputs that could not be parsed",
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_runs_total",
			Help: "Completed runs by termination reason",
		}, []string{"reason"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_memory_rotations_total",
			Help: "Memory rotations by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.iterations, m.toolCalls, m.blocks, m.rejections, m.parseErrors, m.terminations, m.rotations)
	}
	return m
}

func (m *Metrics) iteration() {
	if m != nil {
		m.iterations.Inc()
	}
}

func (m *Metrics) toolCall(tool string, class ToolClass, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = string(ClassifyError(err))
	}
	m.toolCalls.WithLabelValues(tool, string(class), status).Inc()
}

func (m *Metrics) blocked(rule RepetitionRule) {
	if m != nil {
		m.blocks.WithLabelValues(string(rule)).Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.rejections.Inc()
	}
}

func (m *Metrics) parseError() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Metrics) terminated(reason TerminationReason) {
	if m != nil {
		m.terminations.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) rotated(summarized bool) {
	if m == nil {
		return
	}
	outcome := "summarized"
	if !summarized {
		outcome = "truncated"
	}
	m.rotations.WithLabelValues(outcome).Inc()
}
