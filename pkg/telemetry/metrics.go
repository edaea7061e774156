package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the application lifecycle.
type Metrics struct {
	config MetricsConfig

	// Application metrics
	appsRegistered prometheus.Gauge
	appsRunning    prometheus.Gauge

	// Lifecycle operation metrics
	lifecycleOps      *prometheus.CounterVec
	deployDuration    *prometheus.HistogramVec
	destroyDuration   *prometheus.HistogramVec

	// Provider metrics
	providerCalls  *prometheus.CounterVec
	providerErrors *prometheus.CounterVec

	// Store metrics
	storeOpDuration *prometheus.HistogramVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When disabled, every recording method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		appsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_registered",
				Help:      "Current number of registered applications",
			},
		),
		appsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_running",
				Help:      "Current number of applications with a deployed instance",
			},
		),

		lifecycleOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_operations_total",
				Help:      "Total number of lifecycle operations",
			},
			[]string{"operation", "outcome"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of deploy calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider"},
		),
		destroyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "destroy_duration_seconds",
				Help:      "Duration of destroy calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls",
			},
			[]string{"provider", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors",
			},
			[]string{"provider", "operation"},
		),

		storeOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of application store operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.appsRegistered,
		m.appsRunning,
		m.lifecycleOps,
		m.deployDuration,
		m.destroyDuration,
		m.providerCalls,
		m.providerErrors,
		m.storeOpDuration,
		m.errorsByCode,
	)

	return m, nil
}

// SetRegisteredApps sets the current count of registered applications.
func (m *Metrics) SetRegisteredApps(count float64) {
	if m.appsRegistered == nil {
		return
	}
	m.appsRegistered.Set(count)
}

// SetRunningApps sets the current count of deployed applications.
func (m *Metrics) SetRunningApps(count float64) {
	if m.appsRunning == nil {
		return
	}
	m.appsRunning.Set(count)
}

// RecordLifecycleOperation records a lifecycle operation and its outcome.
func (m *Metrics) RecordLifecycleOperation(operation, outcome string) {
	if m.lifecycleOps == nil {
		return
	}
	m.lifecycleOps.WithLabelValues(operation, outcome).Inc()
}

// RecordDeploy records a deploy call against a provider.
func (m *Metrics) RecordDeploy(provider string, duration time.Duration) {
	if m.deployDuration == nil {
		return
	}
	m.deployDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordDestroy records a destroy call against a provider.
func (m *Metrics) RecordDestroy(provider string, duration time.Duration) {
	if m.destroyDuration == nil {
		return
	}
	m.destroyDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProviderCall records a provider call.
func (m *Metrics) RecordProviderCall(provider, operation string) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation).Inc()
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(provider, operation string) {
	if m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, operation).Inc()
}

// RecordStoreOperation records the duration of a store operation.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration) {
	if m.storeOpDuration == nil {
		return
	}
	m.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError records an error by its taxonomy code.
func (m *Metrics) RecordError(code string) {
	if m.errorsByCode == nil || code == "" {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
