package otel

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds the configuration for OpenTelemetry
type Config struct {
	Enabled     bool              // Enable/disable OpenTelemetry
	Endpoint    string            // OTLP endpoint URL (e.g., "https://localhost:4318")
	ServiceName string            // Name of the embedding application
	Headers     map[string]string // Authentication headers (e.g., {"authorization": "your-api-key"})
	Environment string            // Environment (development, production, etc.)
	SampleRate  float64           // Trace sampling rate (0.0 to 1.0, where 1.0 = 100%)
}

// InitOpenTelemetry initializes OpenTelemetry with tracing and metrics
// for the SDK's outbound calls. The returned function shuts both down.
func InitOpenTelemetry(ctx context.Context, cfg Config) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tracerShutdown, err := setupTracing(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}

	metricsShutdown, err := setupMetrics(ctx, res, cfg)
	if err != nil {
		tracerShutdown(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	shutdown := func() {
		if err := tracerShutdown(ctx); err != nil {
			fmt.Printf("Error shutting down tracer: %v\n", err)
		}
		if err := metricsShutdown(ctx); err != nil {
			fmt.Printf("Error shutting down metrics: %v\n", err)
		}
	}

	return shutdown, nil
}

// validateConfig validates the Config struct
func validateConfig(cfg Config) error {
	if cfg.ServiceName == "" {
		return fmt.Errorf("ServiceName is required")
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("Endpoint is required")
	}
	if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
		return fmt.Errorf("SampleRate must be between 0.0 and 1.0, got %f", cfg.SampleRate)
	}
	return nil
}

// newResource creates a resource with service metadata
func newResource(cfg Config) (*resource.Resource, error) {
	hostName, _ := os.Hostname()

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
		semconv.HostName(hostName),
	), nil
}

// setupTracing configures the trace provider
func setupTracing(ctx context.Context, res *resource.Resource, cfg Config) (func(context.Context) error, error) {
	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}

	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	// Configure TLS based on endpoint scheme
	if len(cfg.Endpoint) > 0 && cfg.Endpoint[:5] != "https" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	traceProvider := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return traceProvider.Shutdown, nil
}

// setupMetrics configures the metrics provider
func setupMetrics(ctx context.Context, res *resource.Resource, cfg Config) (func(context.Context) error, error) {
	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}

	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}

	// Configure TLS based on endpoint scheme
	if len(cfg.Endpoint) > 0 && cfg.Endpoint[:5] != "https" {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}

	metricExporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}
