package queue

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"jan-server/services/chat-api/internal/domain/inbox"
)

const instrumentationName = "jan-server/services/chat-api/queue"

// Delivery stages. A local queue delivers straight to the inbox; with asynq
// the local queue forwards to Redis and the worker stage stores.
const (
	StageLocal   = "local"
	StageForward = "forward"
	StageWorker  = "worker"
)

// Instrumenter records a span and otel metrics for every notification delivery.
type Instrumenter struct {
	tracer   trace.Tracer
	service  attribute.KeyValue
	inFlight metric.Int64UpDownCounter
	queued   metric.Int64UpDownCounter
	duration metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewInstrumenter builds instruments from the global otel providers.
func NewInstrumenter(serviceName string) (*Instrumenter, error) {
	return NewInstrumenterWith(otel.Tracer(instrumentationName), otel.Meter(instrumentationName), serviceName)
}

// NewInstrumenterWith builds instruments from explicit providers.
func NewInstrumenterWith(tracer trace.Tracer, meter metric.Meter, serviceName string) (*Instrumenter, error) {
	inFlight, err := meter.Int64UpDownCounter("chat.notifications.in_flight",
		metric.WithDescription("Notification deliveries currently running"))
	if err != nil {
		return nil, err
	}
	queued, err := meter.Int64UpDownCounter("chat.notifications.queued",
		metric.WithDescription("Notifications waiting in the local queue"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("chat.notifications.delivery.duration",
		metric.WithDescription("Time to hand one notification to the next stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter("chat.notifications.deliveries",
		metric.WithDescription("Notification deliveries by stage and outcome"))
	if err != nil {
		return nil, err
	}

	return &Instrumenter{
		tracer:   tracer,
		service:  attribute.String("service", serviceName),
		inFlight: inFlight,
		queued:   queued,
		duration: duration,
		outcomes: outcomes,
	}, nil
}

// Deliver runs fn for n inside a span and records its outcome under stage.
func (i *Instrumenter) Deliver(ctx context.Context, stage string, n inbox.Notification, fn func(context.Context) error) error {
	stageAttr := attribute.String("stage", stage)
	i.inFlight.Add(ctx, 1, metric.WithAttributes(i.service, stageAttr))
	defer i.inFlight.Add(ctx, -1, metric.WithAttributes(i.service, stageAttr))

	ctx, span := i.tracer.Start(ctx, "notification."+stage,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			stageAttr,
			attribute.String("notification.id", n.ID),
			attribute.String("chat.conversation_id", n.ConversationID),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := deliveryOutcome(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	attrs := metric.WithAttributes(i.service, stageAttr, attribute.String("outcome", outcome))
	i.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	i.outcomes.Add(ctx, 1, attrs)
	return err
}

func (i *Instrumenter) queuedDelta(ctx context.Context, delta int64) {
	i.queued.Add(ctx, delta, metric.WithAttributes(i.service))
}

func deliveryOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}
