// Package tracing provides OpenTelemetry integration for the token agent.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages OpenTelemetry tracing for the agent's engine loops.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Config holds configuration for tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// NewTracerProvider creates a new OpenTelemetry tracer provider. Spans are
// written to stdout; there is no remote collector in this agent's scope.
func NewTracerProvider(cfg Config) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// StartSpan starts a new span with the given name and attributes.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(time.Now()),
	)
}

// Shutdown gracefully shuts down the tracer provider, flushing pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// Span names used across the engine.
const (
	SpanSourceFetch   = "tokenagent.source.fetch"
	SpanSourceParse   = "tokenagent.source.parse"
	SpanSinkPropagate = "tokenagent.sink.propagate"
	SpanRefreshCycle  = "tokenagent.refresh.cycle"
	SpanSweeperCycle  = "tokenagent.sweeper.cycle"
)

// Attribute keys used across the engine.
const (
	AttributeSourceID      = attribute.Key("tokenagent.source.id")
	AttributeTokenID       = attribute.Key("tokenagent.token.id")
	AttributeSinkID        = attribute.Key("tokenagent.sink.id")
	AttributeStatus        = attribute.Key("tokenagent.status")
	AttributeError         = attribute.Key("tokenagent.error")
	AttributeCorrelationID = attribute.Key("tokenagent.correlation_id")
)
