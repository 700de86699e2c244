// Package telemetry provides OpenTelemetry tracing setup and the carrier used
// to propagate trace context through queue message attributes.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/JakeFAU/crawl-pipeline"

// Config describes the service reported on every span.
type Config struct {
	ServiceName string
	Version     string
	SampleRatio float64
}

// InitTracerProvider installs a global tracer provider and the W3C trace
// context propagator. Extra options attach exporters or span processors.
func InitTracerProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "crawl-pipeline"
	}
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if cfg.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.Version)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Tracer returns the pipeline tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Inject writes the trace context of ctx into attrs, allocating it when nil.
func Inject(ctx context.Context, attrs map[string]string) map[string]string {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, AttributeCarrier(attrs))
	return attrs
}

// Extract returns ctx carrying the remote span context found in attrs.
func Extract(ctx context.Context, attrs map[string]string) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, AttributeCarrier(attrs))
}

// AttributeCarrier adapts message attributes to propagation.TextMapCarrier.
type AttributeCarrier map[string]string

// Get returns the value stored for key.
func (c AttributeCarrier) Get(key string) string {
	return c[key]
}

// Set stores value under key.
func (c AttributeCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists the stored keys.
func (c AttributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
