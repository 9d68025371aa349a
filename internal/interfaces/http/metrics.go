package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

// MetricsRegistry holds all Prometheus metrics for the service
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Request metrics
	Requests *prometheus.CounterVec

	// Engine timing
	EngineDuration *prometheus.HistogramVec

	// Decision outcomes
	FallbackEmitted prometheus.Counter
	ThesisBreaks    *prometheus.CounterVec

	// Sinks
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	JournalWrites *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
}

// NewMetricsRegistry creates the service metrics on a private registry
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsrun_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),

		EngineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optionsrun_engine_duration_seconds",
				Help:    "Duration of each engine operation in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"operation", "result"},
		),

		FallbackEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "optionsrun_fallback_emitted_total",
				Help: "Total number of strategy lists that led with the capital-preservation fallback",
			},
		),

		ThesisBreaks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsrun_thesis_breaks_total",
				Help: "Total number of monitored trades whose thesis broke, by break type",
			},
			[]string{"break"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsrun_cache_hits_total",
				Help: "Total number of report cache hits by operation",
			},
			[]string{"operation"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsrun_cache_misses_total",
				Help: "Total number of report cache misses by operation",
			},
			[]string{"operation"},
		),

		JournalWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsrun_journal_writes_total",
				Help: "Total number of decision journal writes by result",
			},
			[]string{"result"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionsrun_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.EngineDuration,
		m.FallbackEmitted,
		m.ThesisBreaks,
		m.CacheHits,
		m.CacheMisses,
		m.JournalWrites,
		m.BreakerState,
	)

	return m
}

// Registry exposes the underlying registry for gathering in tests
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StepTimer tracks execution time for one engine operation
type StepTimer struct {
	metrics   *MetricsRegistry
	operation string
	start     time.Time
}

// StartStepTimer begins timing an engine operation
func (m *MetricsRegistry) StartStepTimer(operation string) *StepTimer {
	return &StepTimer{
		metrics:   m,
		operation: operation,
		start:     time.Now(),
	}
}

// Stop completes the timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.EngineDuration.WithLabelValues(st.operation, result).Observe(duration.Seconds())

	log.Debug().
		Str("operation", st.operation).
		Str("result", result).
		Dur("duration", duration).
		Msg("Engine operation completed")
}

// RecordBreakerState mirrors a breaker transition into the gauge
func (m *MetricsRegistry) RecordBreakerState(name string, _, to cb.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}
