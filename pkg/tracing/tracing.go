// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/chicogong/ytagents/pkg/logger"
)

// TracerName is the instrumentation scope used by the pipeline
const TracerName = "github.com/chicogong/ytagents/pipeline"

// Tracer returns the pipeline tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Init installs a tracer provider when enabled and returns its shutdown func.
// Spans go to OTEL_EXPORTER_OTLP_ENDPOINT when set, otherwise to stdout.
// When disabled the global no-op provider stays in place.
func Init(ctx context.Context, log *logger.Logger, enabled bool, serviceName string) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return noop
	}
	if serviceName == "" {
		serviceName = "ytagents"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	exporter, err := newExporter(ctx)
	if err != nil {
		log.Warn("otel exporter init failed, tracing disabled", "error", err)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("otel tracing initialized", "service", serviceName)
	return tp.Shutdown
}

func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
