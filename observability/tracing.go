package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for pipeline spans
const TracerName = "jurismemo-backend"

// ErrUnknownExporter is returned for an unsupported trace exporter name
var ErrUnknownExporter = errors.New("unknown trace exporter")

// TracingConfig selects the trace exporter
type TracingConfig struct {
	ServiceName string
	Environment string
	// Exporter is "stdout" or "none"
	Exporter string
}

// InitTracing installs a global tracer provider and returns its shutdown function
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the pipeline tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
