package utils

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupTracing installs an SDK tracer provider whose finished spans are
// written to the logger at debug level. When disabled the global no-op
// provider stays in place. The returned function flushes and stops the
// provider.
func SetupTracing(enabled bool, logger *logrus.Logger) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&logExporter{logger: logger}),
	)
	otel.SetTracerProvider(tp)
	logger.Info("Tracing enabled")

	return tp.Shutdown
}

// logExporter writes spans as structured log lines
type logExporter struct {
	logger *logrus.Logger
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := logrus.Fields{
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"span":        span.Name(),
			"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		}
		if span.Parent().IsValid() {
			fields["parent_id"] = span.Parent().SpanID().String()
		}
		for _, attr := range span.Attributes() {
			fields[string(attr.Key)] = attr.Value.Emit()
		}

		entry := e.logger.WithFields(fields)
		if span.Status().Code == codes.Error {
			entry.WithField("error", span.Status().Description).Debug("Span failed")
			continue
		}
		entry.Debug("Span finished")
	}
	return nil
}

func (e *logExporter) Shutdown(ctx context.Context) error {
	return nil
}
