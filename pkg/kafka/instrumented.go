package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/scanner-service/pkg/cloudevents"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	"github.com/wms-platform/scanner-service/pkg/resilience"
	"github.com/wms-platform/scanner-service/pkg/tracing"
)

// EventPublisher is implemented by Producer and InstrumentedProducer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}

// InstrumentedProducer adds tracing, metrics and a circuit breaker around a
// publisher.
type InstrumentedProducer struct {
	producer EventPublisher
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer wraps producer. breaker may be nil.
func NewInstrumentedProducer(producer EventPublisher, breaker *resilience.CircuitBreaker, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent with metrics and tracing
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	start := time.Now()

	attrs := append(tracing.MessagingSpanAttributes("kafka", topic, "publish"),
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("scanner.session_id", event.SessionID))
	}
	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	publish := func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	}
	var err error
	if p.breaker != nil {
		_, err = p.breaker.Execute(ctx, publish)
	} else {
		_, err = publish()
	}

	duration := time.Since(start)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.WithError(err).Error("Failed to publish event",
			"topic", topic,
			"eventType", event.Type,
			"eventId", event.ID,
		)
		return err
	}

	span.SetStatus(codes.Ok, "")
	p.logger.Debug("Published event",
		"topic", topic,
		"eventType", event.Type,
		"eventId", event.ID,
		"durationMs", duration.Milliseconds(),
	)
	return nil
}
