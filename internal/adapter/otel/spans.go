package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ssepush"

// StartConnectSpan starts a span covering a stream handshake and registration.
func StartConnectSpan(ctx context.Context, userID, transport string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "connect",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("stream.transport", transport),
		),
	)
}

// StartPushSpan starts a span for a push operation.
func StartPushSpan(ctx context.Context, mode string, recipients int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "push",
		trace.WithAttributes(
			attribute.String("push.mode", mode),
			attribute.Int("push.recipients", recipients),
		),
	)
}
