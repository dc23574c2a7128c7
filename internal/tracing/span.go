package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartPassSpan starts the parent span for one task invocation.
func StartPassSpan(ctx context.Context, tracer trace.Tracer, backend string, user int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, backend+" iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("servebench.backend", backend),
		attribute.Int("servebench.user", user),
	)
	return ctx, span
}

// StartRequestSpan starts a client span for one prediction request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, backend, target string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "POST "+backend,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("servebench.backend", backend),
	)
	if target != "" {
		span.SetAttributes(attribute.String("url.full", target))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
