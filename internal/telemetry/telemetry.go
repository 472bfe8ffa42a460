package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global tracer for the application
	Tracer trace.Tracer

	// Global meter for custom metrics
	Meter metric.Meter

	// Custom metrics
	EntriesStored     metric.Int64Counter
	RetrievalsServed  metric.Int64Counter
	FallbacksUsed     metric.Int64Counter
	CandidatesScanned metric.Int64Counter
	RetrievalLatency  metric.Float64Histogram
)

// Instruments are usable before InitTelemetry runs; the default global
// meter provider makes them no-ops until an exporter is configured.
func init() {
	Tracer = otel.Tracer("memhub")
	Meter = otel.Meter("memhub")
	if err := initMetrics(); err != nil {
		log.Printf("[Telemetry] Failed to create instruments: %v", err)
	}
}

// InitTelemetry initializes OpenTelemetry tracing and metrics
func InitTelemetry(ctx context.Context, serviceName, otelEndpoint string) (func(context.Context) error, error) {
	// Create resource with service information
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("environment", "development"),
		),
	)
	if err != nil {
		return nil, err
	}

	// Create OTLP trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	// Create trace provider
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global trace provider and propagator
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Create global tracer
	Tracer = otel.Tracer(serviceName)

	// Create global meter
	Meter = otel.Meter(serviceName)

	// Initialize custom metrics
	if err := initMetrics(); err != nil {
		return nil, err
	}

	log.Printf("[Telemetry] Initialized with endpoint %s", otelEndpoint)

	// Return shutdown function
	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(shutdownCtx)
	}, nil
}

// initMetrics creates all custom metrics
func initMetrics() error {
	var err error

	EntriesStored, err = Meter.Int64Counter(
		"memhub.entries.stored",
		metric.WithDescription("Number of memory entries persisted"),
	)
	if err != nil {
		return err
	}

	RetrievalsServed, err = Meter.Int64Counter(
		"memhub.retrievals.served",
		metric.WithDescription("Number of retrieval requests served"),
	)
	if err != nil {
		return err
	}

	FallbacksUsed, err = Meter.Int64Counter(
		"memhub.retrievals.fallbacks",
		metric.WithDescription("Number of retrievals that fell back to recency ordering"),
	)
	if err != nil {
		return err
	}

	CandidatesScanned, err = Meter.Int64Counter(
		"memhub.retrievals.candidates",
		metric.WithDescription("Number of candidate entries scored"),
	)
	if err != nil {
		return err
	}

	RetrievalLatency, err = Meter.Float64Histogram(
		"memhub.retrievals.latency",
		metric.WithDescription("Retrieval latency in milliseconds"),
	)
	if err != nil {
		return err
	}

	return nil
}
