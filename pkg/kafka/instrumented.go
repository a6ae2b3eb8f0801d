package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/market-console/finance-portal/pkg/cloudevents"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/tracing"
)

// Publisher publishes a CloudEvent to a topic
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) error
}

// PublishMetrics records publish outcomes
type PublishMetrics interface {
	RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration)
}

// InstrumentedProducer wraps a Publisher with metrics, logging and tracing
type InstrumentedProducer struct {
	inner   Publisher
	metrics PublishMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer. metrics and
// logger may be nil.
func NewInstrumentedProducer(inner Publisher, metrics PublishMetrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		inner:   inner,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("finance-portal/kafka"),
	}
}

// PublishEvent publishes the event inside a producer span
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) error {
	start := time.Now()

	attrs := append(tracing.MessagingSpanAttributes("kafka", topic, "publish"),
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("finance.session_id", event.SessionID))
	}
	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := p.inner.PublishEvent(ctx, topic, event)
	duration := time.Since(start)
	success := err == nil

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, success, duration)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, success, duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
