package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter metric.Meter

	apiCallsTotal    metric.Int64Counter
	apiCallDuration  metric.Float64Histogram
	sessionRefreshes metric.Int64Counter
)

// Init initializes the SDK metrics. Recording functions are no-ops
// until Init succeeds.
func Init(serviceName string) error {
	meter = otel.Meter(serviceName)

	var err error

	apiCallsTotal, err = meter.Int64Counter(
		"stash_api_calls_total",
		metric.WithDescription("Total number of calls to the Stash backend"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stash_api_calls_total counter: %w", err)
	}

	apiCallDuration, err = meter.Float64Histogram(
		"stash_api_call_duration_seconds",
		metric.WithDescription("Stash backend call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stash_api_call_duration_seconds histogram: %w", err)
	}

	sessionRefreshes, err = meter.Int64Counter(
		"stash_session_refreshes_total",
		metric.WithDescription("Total number of token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stash_session_refreshes_total counter: %w", err)
	}

	return nil
}

// RecordAPICall records one outbound call to the backend.
func RecordAPICall(ctx context.Context, client, operation string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("client", client),
		attribute.String("operation", operation),
		attribute.Int("http.status_code", statusCode),
	}

	if apiCallsTotal != nil {
		apiCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if apiCallDuration != nil {
		apiCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordSessionRefresh records a refresh attempt outcome
// (success, rejected, or transient).
func RecordSessionRefresh(ctx context.Context, result string) {
	if sessionRefreshes == nil {
		return
	}
	sessionRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}
