package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ragmesh"

// StartAcquireSpan starts a span covering instance acquisition for a scope.
func StartAcquireSpan(ctx context.Context, tenantID, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pool.acquire",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("project.id", projectID),
		),
	)
}

// StartQuerySpan starts a span for one RAG query.
func StartQuerySpan(ctx context.Context, tenantID, projectID, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "rag.query",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("project.id", projectID),
			attribute.String("query.mode", mode),
		),
	)
}
