package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TraceManager struct {
	tracer trace.Tracer
}

func NewTraceManager(serviceName string) *TraceManager {
	return &TraceManager{
		tracer: otel.Tracer(serviceName),
	}
}

// StartDispatchSpan starts a span covering the handling of a single gateway
// event from decode through store mutation.
func (tm *TraceManager) StartDispatchSpan(ctx context.Context, eventKind, agent, conversationID string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "dispatch_event", trace.WithAttributes(
		attribute.String("event.kind", eventKind),
		attribute.String("event.agent", agent),
		attribute.String("conversation.id", conversationID),
		attribute.String("messaging.system", "websocket"),
		attribute.String("messaging.operation", "receive"),
	))
}

// StartSendSpan starts a span covering an outbound frame write.
func (tm *TraceManager) StartSendSpan(ctx context.Context, frameType, conversationID string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "send_frame", trace.WithAttributes(
		attribute.String("frame.type", frameType),
		attribute.String("conversation.id", conversationID),
		attribute.String("messaging.system", "websocket"),
		attribute.String("messaging.operation", "send"),
	))
}

// StartReconnectSpan starts a span covering one reconnect attempt.
func (tm *TraceManager) StartReconnectSpan(ctx context.Context, attempt int, url string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "reconnect", trace.WithAttributes(
		attribute.Int("reconnect.attempt", attempt),
		attribute.String("server.url", url),
	))
}

// StartTurnSpan starts a span covering a full assistant turn, from chat_send
// until the done event (or stall) clears the processing flag.
func (tm *TraceManager) StartTurnSpan(ctx context.Context, conversationID string, hasAttachment bool) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "assistant_turn", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Bool("turn.has_attachment", hasAttachment),
	))
}

func (tm *TraceManager) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (tm *TraceManager) SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddTaskAttributes adds task board information to a span
func (tm *TraceManager) AddTaskAttributes(span trace.Span, taskID, agent, status string) {
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.agent", agent),
		attribute.String("task.status", status),
	)
}

// AddStreamAttributes adds text or structured-UI stream information to a span
func (tm *TraceManager) AddStreamAttributes(span trace.Span, streamID, agent string, bodyLength int) {
	span.SetAttributes(
		attribute.String("stream.id", streamID),
		attribute.String("stream.agent", agent),
		attribute.Int("stream.body_length", bodyLength),
	)
}

// AddMessageAttributes adds conversation message information to a span
func (tm *TraceManager) AddMessageAttributes(span trace.Span, messageID, kind string, retryable bool) {
	span.SetAttributes(
		attribute.String("message.id", messageID),
		attribute.String("message.kind", kind),
		attribute.Bool("message.retryable", retryable),
	)
}

// AddSpanEvent adds a timestamped event to a span for tracking processing steps
func (tm *TraceManager) AddSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// AddComponentAttribute adds a component identifier to a span
func (tm *TraceManager) AddComponentAttribute(span trace.Span, component string) {
	span.SetAttributes(attribute.String("agentstream.component", component))
}
