package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const tracerName = "jan-server/services/chat-api"

// Span attribute keys for conversation operations.
const (
	AttrConversationID = attribute.Key("chat.conversation_id")
	AttrOperation      = attribute.Key("chat.operation")
	AttrOrigin         = attribute.Key("chat.origin")
	AttrFanOut         = attribute.Key("chat.fan_out")
)

// StartOperation opens an internal span named "conversation.<operation>".
func StartOperation(ctx context.Context, operation, conversationID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrOperation.String(operation))
	if conversationID != "" {
		attrs = append(attrs, AttrConversationID.String(conversationID))
	}
	return otel.Tracer(tracerName).Start(ctx, "conversation."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError attaches err to the span in ctx. Only failures on our side
// (transient, unclassified) set the span status; caller mistakes stay events.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	errType := platformerrors.TypeOf(err)
	span.RecordError(err, trace.WithAttributes(attribute.String("error.type", string(errType))))
	if !platformerrors.IsClientError(errType) {
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceID returns the trace id carried by ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
