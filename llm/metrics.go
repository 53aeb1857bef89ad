package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records Prometheus metrics for model calls.
type MetricsRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetricsRecorder creates a recorder and registers its collectors with reg.
// A nil reg leaves the collectors unregistered, which is convenient in tests.
func NewMetricsRecorder(reg prometheus.Registerer) *MetricsRecorder {
	m := &MetricsRecorder{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reactor_llm_requests_total",
				Help: "Total number of model requests by provider, model and status",
			},
			[]string{"provider", "model", "status", "error_type"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reactor_llm_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDuration)
	}
	return m
}

// Middleware returns a client middleware that records every call.
func (m *MetricsRecorder) Middleware() Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (string, error)) (string, error) {
		start := time.Now()
		text, err := next(ctx, req)
		m.observe(req, err, time.Since(start))
		return text, err
	}
}

func (m *MetricsRecorder) observe(req Request, err error, d time.Duration) {
	status, errType := "success", ""
	if err != nil {
		status = "error"
		errType = fmt.Sprintf("%T", err)
	}
	m.requestsTotal.WithLabelValues(req.Provider, req.Model, status, errType).Inc()
	m.requestDuration.WithLabelValues(req.Provider, req.Model).Observe(d.Seconds())
}
