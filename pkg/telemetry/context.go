package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry surface combining logging,
// tracing, metrics, and the lifecycle event bus.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *Bus
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewBus(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	t.Events.Close()

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to
	// continue serving metrics until the very end of the application
	// lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext carries the span, logger, and timer of one
// instrumented operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing,
// and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithOperation(operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithAppContext creates a context enriched with application-scoped
// telemetry: a child logger carrying the app id and a lifecycle span.
func WithAppContext(ctx context.Context, operation, appID string) (context.Context, trace.Span) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	spanCtx, span := tel.Tracer.StartLifecycleSpan(ctx, operation, appID)

	logger := tel.Logger.WithAppID(appID).WithOperation(operation)
	spanCtx = logger.WithContext(spanCtx)

	return spanCtx, span
}

// RecordProviderOperation wraps a provider adapter call with a span,
// call counters, and error accounting.
func RecordProviderOperation(ctx context.Context, providerID, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartProviderSpan(ctx, providerID, operation)
	defer span.End()

	timer := NewTimer()
	err := fn(spanCtx)
	duration := timer.Duration()

	tel.Metrics.RecordProviderCall(providerID, operation)
	switch operation {
	case "deploy":
		tel.Metrics.RecordDeploy(providerID, duration)
	case "destroy":
		tel.Metrics.RecordDestroy(providerID, duration)
	}

	if err != nil {
		tel.Metrics.RecordProviderError(providerID, operation)
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}

	return err
}

// RecordStoreOperation wraps a store call with a span and a duration
// observation.
func RecordStoreOperation(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartStoreSpan(ctx, operation)
	defer span.End()

	timer := NewTimer()
	err := fn(spanCtx)
	tel.Metrics.RecordStoreOperation(operation, timer.Duration())

	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}

	return err
}
