package kafka

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for messaging
const (
	MessagingSystemKey              = "messaging.system"
	MessagingDestinationNameKey     = "messaging.destination.name"
	MessagingDestinationPartitionID = "messaging.destination.partition.id"
	MessagingOperationNameKey       = "messaging.operation.name"
	MessagingOperationTypeKey       = "messaging.operation.type"
	MessagingKafkaOffsetKey         = "messaging.kafka.offset"
	MessagingKafkaConsumerGroupKey  = "messaging.kafka.consumer.group"
	MessagingKafkaMessageKeyKey     = "messaging.kafka.message.key"
	MessagingRetryAttemptKey        = "messaging.retry.attempt"
)

// TracingService provides OpenTelemetry tracing for Kafka operations
type TracingService struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	config     *TracingConfig
}

// NewTracingService creates a new tracing service
func NewTracingService(config *TracingConfig) *TracingService {
	tracerName := config.TracerName
	if tracerName == "" {
		tracerName = "github.com/loipv/hubcore"
	}

	tracerVersion := config.TracerVersion
	if tracerVersion == "" {
		tracerVersion = Version
	}

	return &TracingService{
		tracer:     otel.Tracer(tracerName, trace.WithInstrumentationVersion(tracerVersion)),
		propagator: otel.GetTextMapPropagator(),
		config:     config,
	}
}

// StartProducerSpan starts a new span for producing a record
func (t *TracingService) StartProducerSpan(ctx context.Context, topic string, partition int32, key []byte) (context.Context, func(error)) {
	spanName := fmt.Sprintf("%s publish", topic)

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(MessagingSystemKey, "kafka"),
			attribute.String(MessagingDestinationNameKey, topic),
			attribute.String(MessagingOperationNameKey, "publish"),
			attribute.String(MessagingOperationTypeKey, "publish"),
		),
	)

	if key != nil {
		span.SetAttributes(attribute.String(MessagingKafkaMessageKeyKey, string(key)))
	}

	if partition != PartitionAny && partition >= 0 {
		span.SetAttributes(attribute.Int(MessagingDestinationPartitionID, int(partition)))
	}

	return ctx, endSpanFunc(span)
}

// StartConsumerSpan starts a new span for one handler attempt on a record
func (t *TracingService) StartConsumerSpan(ctx context.Context, groupID string, rec *Record, attempt int) (context.Context, func(error)) {
	ctx = t.ExtractTraceContext(ctx, rec)

	spanName := fmt.Sprintf("%s %s process", groupID, rec.Topic)

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String(MessagingSystemKey, "kafka"),
			attribute.String(MessagingDestinationNameKey, rec.Topic),
			attribute.Int(MessagingDestinationPartitionID, int(rec.Partition)),
			attribute.String(MessagingOperationNameKey, "process"),
			attribute.String(MessagingOperationTypeKey, "process"),
			attribute.Int64(MessagingKafkaOffsetKey, rec.Offset),
			attribute.String(MessagingKafkaConsumerGroupKey, groupID),
			attribute.Int(MessagingRetryAttemptKey, attempt),
		),
	)

	if rec.Key != nil {
		span.SetAttributes(attribute.String(MessagingKafkaMessageKeyKey, string(rec.Key)))
	}

	return ctx, endSpanFunc(span)
}

func endSpanFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// InjectTraceContext injects trace context into Kafka message headers
func (t *TracingService) InjectTraceContext(ctx context.Context, msg *kafka.Message) {
	carrier := &kafkaHeaderCarrier{msg: msg}
	t.propagator.Inject(ctx, carrier)
}

// ExtractTraceContext extracts trace context from record headers
func (t *TracingService) ExtractTraceContext(ctx context.Context, rec *Record) context.Context {
	return t.propagator.Extract(ctx, recordHeaderCarrier(rec.Headers))
}

// kafkaHeaderCarrier implements propagation.TextMapCarrier for kafka.Message
type kafkaHeaderCarrier struct {
	msg *kafka.Message
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, val string) {
	for i := range c.msg.Headers {
		if c.msg.Headers[i].Key == key {
			c.msg.Headers[i].Value = []byte(val)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{
		Key:   key,
		Value: []byte(val),
	})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// recordHeaderCarrier is a read-only carrier over received headers
type recordHeaderCarrier Headers

func (c recordHeaderCarrier) Get(key string) string {
	return string(c[key])
}

// Set is a no-op, received records are never modified
func (c recordHeaderCarrier) Set(key, val string) {}

func (c recordHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
