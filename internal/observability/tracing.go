package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the named tracer from the global provider. Without an SDK
// provider installed the spans are no-ops.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// SessionAttributes tags a span with tenant and session identifiers.
func SessionAttributes(tenantID, sessionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("tenant.id", tenantID)}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("session.id", sessionID))
	}
	return attrs
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartSpan starts a span with session attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name, tenantID, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(SessionAttributes(tenantID, sessionID)...))
}
