// Package telemetry provides optional OTLP tracing of scheduler ticks
// and IPC requests, modeled on the teacher's pkg/telemetry wrapper
// around the OpenTelemetry SDK.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures tracing for one jidld process.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	LoggerName  string
	SampleRate  float64
}

// Provider wraps a TracerProvider, defaulting to a no-op tracer when
// tracing is disabled so call sites never need a nil check.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var global *Provider

// Init builds and installs the global Provider. Disabled configs
// return a Provider backed by the global (no-op by default) tracer,
// so StartTick, StartRead and StartIPCRequest are always safe to call.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		p := &Provider{tracer: otel.Tracer(cfg.ServiceName)}
		global = p
		return p, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("jidl.logger", cfg.LoggerName),
		),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	p := &Provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName)}
	global = p
	return p, nil
}

// Shutdown flushes and stops the exporter. A no-op Provider (tracing
// disabled) has nothing to flush.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Get returns the global Provider, or a detached no-op one if Init was
// never called.
func Get() *Provider {
	if global == nil {
		return &Provider{tracer: otel.Tracer("jidl")}
	}
	return global
}

// StartTick starts a span covering one scheduler tick's read/write fan-out.
func StartTick(ctx context.Context, loggerName string, tickCounter int64) (context.Context, trace.Span) {
	return Get().tracer.Start(ctx, "scheduler.tick", trace.WithAttributes(
		attribute.String("jidl.logger", loggerName),
		attribute.Int64("jidl.tick", tickCounter),
	))
}

// StartRead starts a span covering one connection's per-tick read task.
func StartRead(ctx context.Context, connectionName string) (context.Context, trace.Span) {
	return Get().tracer.Start(ctx, "connection.read", trace.WithAttributes(
		attribute.String("jidl.connection", connectionName),
	))
}

// StartIPCRequest starts a span covering one served IPC request.
func StartIPCRequest(ctx context.Context, method string) (context.Context, trace.Span) {
	return Get().tracer.Start(ctx, "ipc.request", trace.WithAttributes(
		attribute.String("jidl.method", method),
	))
}

// End closes span, recording err (if non-nil) as a span error.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
