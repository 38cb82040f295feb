package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hookline/dispatch"

// Tracer provides OpenTelemetry tracing for dispatch.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new dispatch tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartAttemptSpan starts a new span for a delivery attempt.
func (t *Tracer) StartAttemptSpan(ctx context.Context, webhookID int64, attemptNumber int, subscriptionID int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dispatch.delivery_attempt",
		trace.WithAttributes(
			attribute.Int64("dispatch.webhook_id", webhookID),
			attribute.Int("dispatch.attempt_number", attemptNumber),
			attribute.Int64("dispatch.subscription_id", subscriptionID),
		),
	)
}

// EndAttemptSpan ends an attempt span with result attributes.
func (t *Tracer) EndAttemptSpan(span trace.Span, statusCode int, latencyMs int, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("dispatch.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("dispatch.error", errMsg))
	}
	span.End()
}

// StartIngestSpan starts a new span for an ingest operation.
func (t *Tracer) StartIngestSpan(ctx context.Context, subscriptionID int64, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dispatch.ingest",
		trace.WithAttributes(
			attribute.Int64("dispatch.subscription_id", subscriptionID),
			attribute.String("dispatch.event_type", eventType),
		),
	)
}
