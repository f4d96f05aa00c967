package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// loggingExporter writes finished spans to the daemon log, which is the only
// trace sink on a device without a collector.
type loggingExporter struct {
	logger zerolog.Logger
}

func newLoggingExporter(logger zerolog.Logger) sdktrace.SpanExporter {
	return &loggingExporter{logger: logger}
}

func (l *loggingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		event := l.logger.Debug()
		if span.Status().Code == codes.Error {
			event = l.logger.Warn().Str("status", span.Status().Description)
		}
		if sc.TraceID().IsValid() {
			event = event.Str("trace_id", sc.TraceID().String())
		}
		if parent := span.Parent(); parent.IsValid() {
			event = event.Str("parent_span_id", parent.SpanID().String())
		}
		event = event.Str("span_name", span.Name()).
			Dur("duration", span.EndTime().Sub(span.StartTime()))

		fields := make(map[string]any, len(span.Attributes()))
		for _, attr := range span.Attributes() {
			fields[string(attr.Key)] = attr.Value.Emit()
		}
		for _, ev := range span.Events() {
			for _, attr := range ev.Attributes {
				fields[ev.Name+"."+string(attr.Key)] = attr.Value.Emit()
			}
		}
		if len(fields) > 0 {
			event = event.Fields(fields)
		}
		event.Msg("Span completed")
	}
	return nil
}

func (l *loggingExporter) Shutdown(context.Context) error {
	return nil
}

func (l *loggingExporter) ForceFlush(context.Context) error {
	return nil
}

var _ sdktrace.SpanExporter = (*loggingExporter)(nil)
