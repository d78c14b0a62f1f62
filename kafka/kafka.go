// Package kafka provides the message runtime shared by hub services,
// built on top of confluent-kafka-go.
//
// Features:
//   - Typed Producer with codec-encoded keys and payloads
//   - Cached partition count, refreshed by at most one sender at a time
//   - Consumer supervision loop with outer (stream) and inner (handler) backoff
//   - Severity-driven handler outcomes: retry, drop or abort the process
//   - OpenTelemetry distributed tracing
//   - Prometheus metrics
//   - Built-in health checks
//
// Quick Start:
//
//	// Create producer
//	producer, err := kafka.NewProducer(ctx,
//	    kafka.ProducerConfig{ClientConfig: cfg, Topic: "drops"},
//	    codec.Proto[*pb.DropKey](),
//	    codec.Proto[*pb.DropEvent](),
//	)
//
//	// Send record
//	err = producer.Send(ctx, key, event)
//
//	// Create consumer
//	consumer, err := kafka.NewConsumer(
//	    kafka.ConsumerConfig{ClientConfig: cfg, ServiceName: "minter"},
//	    group,
//	)
//
//	// Start consuming (blocking)
//	err = consumer.Consume(ctx, kafka.DefaultBackoffConfig(), func(ctx context.Context, ev Event) error {
//	    // Process event, return a triageable error
//	    return nil
//	})
package kafka

// Version of the library
const Version = "1.0.0"
