package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the action engine.
type Metrics struct {
	config MetricsConfig

	// Action metrics
	actionsEnqueued *prometheus.CounterVec
	actionsExecuted *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Alert metrics
	alertsEmitted *prometheus.CounterVec

	// Queue metrics
	queueDepth    prometheus.Gauge
	activeActions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		actionsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_enqueued_total",
				Help:      "Total number of actions enqueued",
			},
			[]string{"kind"},
		),
		actionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_executed_total",
				Help:      "Total number of actions executed",
			},
			[]string{"kind", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of action execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of classified errors by kind",
			},
			[]string{"kind"},
		),

		alertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_emitted_total",
				Help:      "Total number of alerts emitted",
			},
			[]string{"severity"},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of actions waiting in the execution queue",
			},
		),
		activeActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_actions",
				Help:      "Current number of actions being executed (0 or 1)",
			},
		),
	}

	registry.MustRegister(
		m.actionsEnqueued,
		m.actionsExecuted,
		m.actionDuration,
		m.errorsByKind,
		m.alertsEmitted,
		m.queueDepth,
		m.activeActions,
	)

	return m, nil
}

// RecordActionEnqueued increments the counter for enqueued actions.
func (m *Metrics) RecordActionEnqueued(kind string) {
	if m.actionsEnqueued == nil {
		return
	}
	m.actionsEnqueued.WithLabelValues(kind).Inc()
	m.queueDepth.Inc()
}

// RecordActionExecuted records a settled action with its status and duration.
func (m *Metrics) RecordActionExecuted(kind, status string, duration time.Duration) {
	if m.actionsExecuted == nil {
		return
	}
	m.actionsExecuted.WithLabelValues(kind, status).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.queueDepth.Dec()
}

// RecordActionActive tracks whether an action body is currently executing.
func (m *Metrics) RecordActionActive(active bool) {
	if m.activeActions == nil {
		return
	}
	if active {
		m.activeActions.Set(1)
	} else {
		m.activeActions.Set(0)
	}
}

// RecordError records a classified error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordAlert records an emitted alert by severity.
func (m *Metrics) RecordAlert(severity string) {
	if m.alertsEmitted == nil {
		return
	}
	m.alertsEmitted.WithLabelValues(severity).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
