// Package telemetry exposes the router's Prometheus instruments.
// All methods are nil-safe so services can run without metrics in tests.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	tokens            *prometheus.CounterVec
	selections        *prometheus.CounterVec
	evaluations       *prometheus.CounterVec
	healthy           prometheus.Gauge
	activeAgents      prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// NewMetrics registers the router instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		executions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aule_router_executions_total",
				Help: "Model executions by model and outcome",
			},
			[]string{"model", "status"},
		),
		executionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aule_router_execution_duration_seconds",
				Help:    "Wall-clock duration of model executions",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"model"},
		),
		tokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aule_router_tokens_total",
				Help: "Estimated or reported tokens by model and direction",
			},
			[]string{"model", "direction"},
		),
		selections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aule_router_selections_total",
				Help: "Selection outcomes by category and chosen model",
			},
			[]string{"category", "model"},
		),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aule_router_evaluations_total",
				Help: "Recorded evaluations by model and category",
			},
			[]string{"model", "category"},
		),
		healthy: f.NewGauge(prometheus.GaugeOpts{
			Name: "aule_router_healthy",
			Help: "1 when the last health poll found a non-empty registry",
		}),
		activeAgents: f.NewGauge(prometheus.GaugeOpts{
			Name: "aule_router_active_agents",
			Help: "Number of active agents",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "aule_router_task_queue_depth",
			Help: "Pending agent tasks",
		}),
	}
}

func (m *Metrics) ObserveExecution(model string, success bool, d time.Duration, in, out int) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.executions.WithLabelValues(model, status).Inc()
	m.executionDuration.WithLabelValues(model).Observe(d.Seconds())
	m.tokens.WithLabelValues(model, "input").Add(float64(in))
	m.tokens.WithLabelValues(model, "output").Add(float64(out))
}

func (m *Metrics) ObserveSelection(category, model string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(category, model).Inc()
}

func (m *Metrics) ObserveEvaluation(model, category string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(model, category).Inc()
}

func (m *Metrics) SetHealthy(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.healthy.Set(1)
		return
	}
	m.healthy.Set(0)
}

func (m *Metrics) SetActiveAgents(n int) {
	if m == nil {
		return
	}
	m.activeAgents.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
