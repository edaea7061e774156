// Package telemetry provides observability instrumentation for openberth.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and the lifecycle event bus
// into a unified system for monitoring application deployments.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Bus - In-process lifecycle events with per-subscriber filtering
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "openberth"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("lifecycle-controller")
//	logger = logger.WithAppID("web-frontend").WithProvider("aws")
//	logger.Info("Starting application")
//	logger.WithError(err).Error("Deploy failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// Packages that take a zerolog.Logger directly, such as the lifecycle
// controller and the policy engine, receive one via Logger.Zerolog().
//
// # Distributed Tracing
//
// Tracing provides visibility into lifecycle operations:
//
//	ctx, span := tel.Tracer.StartLifecycleSpan(ctx, "start", appID)
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track lifecycle behavior:
//
//	// Lifecycle operations
//	tel.Metrics.RecordLifecycleOperation("start", "success")
//	tel.Metrics.SetRegisteredApps(12)
//
//	// Provider calls
//	tel.Metrics.RecordDeploy("aws", duration)
//	tel.Metrics.RecordProviderError("aws", "deploy")
//
//	// Errors by taxonomy code
//	tel.Metrics.RecordError("APP_RUNNING")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Bus
//
// The bus implements engine.EventPublisher. Subscriptions carry a filter
// and a buffered channel; slow subscribers drop events instead of
// blocking the controller:
//
//	events, err := tel.Events.Subscribe(ctx, engine.EventFilter{
//	    Types: []engine.EventType{engine.EventTypeDeployFailed},
//	})
//	for event := range events {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "app.start",
//	    attribute.String("app.id", appID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Starting application")
//
//	// Provider adapter call
//	err := telemetry.RecordProviderOperation(ctx, "aws", "deploy", func(ctx context.Context) error {
//	    return adapter.Deploy(ctx, rawConfig, payload)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "openberth",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This closes every event subscription and exports all pending traces.
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - openberth_apps_registered
//   - openberth_apps_running
//   - openberth_lifecycle_operations_total{operation,outcome}
//   - openberth_deploy_duration_seconds{provider}
//   - openberth_destroy_duration_seconds{provider}
//   - openberth_provider_calls_total{provider,operation}
//   - openberth_provider_errors_total{provider,operation}
//   - openberth_store_operation_duration_seconds{operation}
//   - openberth_errors_total{code}
//
// # Security Considerations
//
//   - Never log provider credentials or raw instance refs that embed them
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
package telemetry
