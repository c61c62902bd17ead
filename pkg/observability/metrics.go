package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus series fed by engine lifecycle hooks.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runsActive    prometheus.Gauge
	bricksTotal   *prometheus.CounterVec
	brickDuration *prometheus.HistogramVec
	bricksSkipped *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the series on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brickrt_runs_total",
				Help: "Total number of finished pipeline runs by status",
			},
			[]string{"status"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "brickrt_runs_active",
				Help: "Number of pipeline runs in progress",
			},
		),
		bricksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brickrt_brick_invocations_total",
				Help: "Total number of brick invocations by brick and outcome",
			},
			[]string{"brick_id", "outcome"},
		),
		brickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brickrt_brick_duration_seconds",
				Help:    "Brick invocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"brick_id"},
		),
		bricksSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brickrt_brick_skipped_total",
				Help: "Total number of steps skipped by their condition",
			},
			[]string{"brick_id"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal,
		m.runsActive,
		m.bricksTotal,
		m.brickDuration,
		m.bricksSkipped,
	)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStatus: func(_ context.Context, e *domain.RunEvent) {
			switch {
			case e.Status == domain.RunPending:
				m.runsActive.Inc()
			case e.Status.IsTerminal():
				m.runsActive.Dec()
				m.runsTotal.WithLabelValues(string(e.Status)).Inc()
			}
		},
		OnBrickFinish: func(_ context.Context, e *domain.BrickEvent) {
			m.bricksTotal.WithLabelValues(string(e.BrickID), e.Outcome()).Inc()
			m.brickDuration.WithLabelValues(string(e.BrickID)).Observe(e.Duration.Seconds())
		},
		OnBrickSkip: func(_ context.Context, e *domain.BrickEvent) {
			m.bricksSkipped.WithLabelValues(string(e.BrickID)).Inc()
		},
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
