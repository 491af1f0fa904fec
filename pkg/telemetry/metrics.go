package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for camline.
type Metrics struct {
	config MetricsConfig

	// Autosave metrics
	autosavesTotal  *prometheus.CounterVec
	autosaveLatency prometheus.Histogram

	// Recalculation metrics
	recalculationsTotal *prometheus.CounterVec

	// Job metrics
	jobsCreated   *prometheus.CounterVec
	pollAttempts  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec

	// System metrics
	activePolls prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
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

		autosavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autosaves_total",
				Help:      "Total number of autosave attempts",
			},
			[]string{"result"},
		),
		autosaveLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "autosave_duration_seconds",
				Help:      "Duration of autosave persistence calls in seconds",
				Buckets:   buckets,
			},
		),

		recalculationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recalculations_total",
				Help:      "Total number of recalculation attempts",
			},
			[]string{"result"},
		),

		jobsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_created_total",
				Help:      "Total number of CAM jobs created",
			},
			[]string{"kind"},
		),
		pollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_attempts",
				Help:      "Number of status queries issued per poll loop",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 30, 60, 120},
			},
			[]string{"kind", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stage execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "status"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of pipeline stage executions",
			},
			[]string{"kind", "status"},
		),

		activePolls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_polls",
				Help:      "Current number of in-flight poll loops",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.autosavesTotal,
		m.autosaveLatency,
		m.recalculationsTotal,
		m.jobsCreated,
		m.pollAttempts,
		m.stageDuration,
		m.stagesTotal,
		m.activePolls,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordAutosave records an autosave attempt with its result
// (saved, error, suppressed).
func (m *Metrics) RecordAutosave(result string, duration time.Duration) {
	if m.autosavesTotal == nil {
		return
	}
	m.autosavesTotal.WithLabelValues(result).Inc()
	if result != "suppressed" {
		m.autosaveLatency.Observe(duration.Seconds())
	}
}

// RecordRecalculation records a recalculation attempt with its result
// (success, error).
func (m *Metrics) RecordRecalculation(result string) {
	if m.recalculationsTotal == nil {
		return
	}
	m.recalculationsTotal.WithLabelValues(result).Inc()
}

// RecordJobCreated records a CAM job creation.
func (m *Metrics) RecordJobCreated(kind string) {
	if m.jobsCreated == nil {
		return
	}
	m.jobsCreated.WithLabelValues(kind).Inc()
}

// RecordPoll records a finished poll loop.
func (m *Metrics) RecordPoll(kind, outcome string, attempts int) {
	if m.pollAttempts == nil {
		return
	}
	m.pollAttempts.WithLabelValues(kind, outcome).Observe(float64(attempts))
}

// RecordStage records a finished pipeline stage execution.
func (m *Metrics) RecordStage(kind, status string, duration time.Duration) {
	if m.stagesTotal == nil {
		return
	}
	m.stagesTotal.WithLabelValues(kind, status).Inc()
	m.stageDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// PollStarted increments the in-flight poll gauge.
func (m *Metrics) PollStarted() {
	if m.activePolls == nil {
		return
	}
	m.activePolls.Inc()
}

// PollFinished decrements the in-flight poll gauge.
func (m *Metrics) PollFinished() {
	if m.activePolls == nil {
		return
	}
	m.activePolls.Dec()
}

// StartServer starts the metrics HTTP endpoint. The listener is bound
// synchronously so a bad address surfaces here; serving runs in the
// background. No-op when disabled.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled || m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	listener, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddress, err)
	}

	m.listener = listener
	m.server = &http.Server{Handler: mux}

	go func() {
		if err := m.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			// The endpoint is best-effort; failure to serve metrics must
			// not take the tool down.
			_ = err
		}
	}()

	return nil
}

// ListenAddress returns the bound metrics endpoint address, empty while
// the server is not running.
func (m *Metrics) ListenAddress() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Shutdown stops the metrics HTTP endpoint.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
