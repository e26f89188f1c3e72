package logger

import (
	"context"
	"fmt"

	"github.com/octabyte/stash-go/utils/logger"
	"go.opentelemetry.io/otel/trace"
)

// InfoCtx logs an info message with trace context
func InfoCtx(ctx context.Context, msg string, args ...interface{}) {
	logWithTrace(ctx, "info", msg, args...)
}

// ErrorCtx logs an error message with trace context
func ErrorCtx(ctx context.Context, msg string, err error) {
	if err != nil {
		logWithTrace(ctx, "error", fmt.Sprintf("%s: %v", msg, err))
	} else {
		logWithTrace(ctx, "error", msg)
	}
}

// WarnCtx logs a warning message with trace context
func WarnCtx(ctx context.Context, msg string, args ...interface{}) {
	logWithTrace(ctx, "warn", msg, args...)
}

// DebugCtx logs a debug message with trace context
func DebugCtx(ctx context.Context, msg string, args ...interface{}) {
	logWithTrace(ctx, "debug", msg, args...)
}

// logWithTrace extracts trace information from context and logs with it
func logWithTrace(ctx context.Context, level string, msg string, args ...interface{}) {
	spanContext := trace.SpanContextFromContext(ctx)

	var finalMsg string
	if len(args) > 0 {
		finalMsg = fmt.Sprintf(msg, args...)
	} else {
		finalMsg = msg
	}

	if spanContext.IsValid() {
		finalMsg = fmt.Sprintf("[trace_id=%s span_id=%s] %s",
			spanContext.TraceID().String(),
			spanContext.SpanID().String(),
			finalMsg,
		)
	}

	switch level {
	case "error":
		logger.LogError(finalMsg)
	case "warn":
		logger.LogWarn(finalMsg)
	case "debug":
		logger.LogDebug(finalMsg)
	default:
		logger.LogInfo(finalMsg)
	}
}

// GetTraceID extracts the trace ID from context
func GetTraceID(ctx context.Context) string {
	spanContext := trace.SpanContextFromContext(ctx)
	if spanContext.IsValid() {
		return spanContext.TraceID().String()
	}
	return ""
}
