package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/loipv/hubcore/codec"
	"github.com/loipv/hubcore/triage"
)

// producerClient is the part of *kafka.Producer used by Producer
type producerClient interface {
	MetadataClient
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// topicAdmin is the part of *kafka.AdminClient used to create topics
type topicAdmin interface {
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	Close()
}

// Producer writes typed records to a single topic.
//
// A Producer is safe for concurrent use and is meant to live for the whole
// process.
type Producer[K, V any] struct {
	client     producerClient
	topic      string
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
	partitions *PartitionCache
	opts       *producerOptions
	tracer     *TracingService
	logger     Logger
	metrics    *Metrics
	closed     atomic.Bool
	done       chan struct{}
}

// NewProducer creates the topic if it does not exist yet and connects a
// producer to it
func NewProducer[K, V any](
	ctx context.Context,
	cfg ProducerConfig,
	keyCodec codec.Codec[K],
	valueCodec codec.Codec[V],
	opts ...ProducerOption,
) (*Producer[K, V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Topic == "" {
		return nil, ErrTopicRequired
	}

	o := newDefaultProducerOptions()
	for _, opt := range opts {
		opt(o)
	}

	configMap := cfg.configMap()
	configMap.SetKey("acks", int(o.acks))
	if o.compression != CompressionNone {
		configMap.SetKey("compression.type", o.compression.String())
	}
	if o.idempotent {
		configMap.SetKey("enable.idempotence", true)
	}

	producer, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	admin, err := kafka.NewAdminClientFromProducer(producer)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	if err := ensureTopic(ctx, admin, cfg.Topic, o); err != nil {
		producer.Close()
		return nil, err
	}

	return newProducer(producer, cfg.Topic, keyCodec, valueCodec, o), nil
}

// ensureTopic creates the topic, treating an existing topic as success
func ensureTopic(ctx context.Context, admin topicAdmin, topic string, o *producerOptions) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     o.numPartitions,
		ReplicationFactor: o.replicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", topic, err)
	}

	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
	}
	return nil
}

func newProducer[K, V any](
	client producerClient,
	topic string,
	keyCodec codec.Codec[K],
	valueCodec codec.Codec[V],
	o *producerOptions,
) *Producer[K, V] {
	logger := o.logger
	if logger == nil {
		logger = NewDefaultLogger(LogLevelInfo)
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	p := &Producer[K, V]{
		client:     client,
		topic:      topic,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		opts:       o,
		logger:     logger,
		metrics:    metrics,
		done:       make(chan struct{}),
	}

	p.partitions = newPartitionCache(o.refreshInterval, p.fetchPartitionCount)
	p.partitions.onRefresh = func(err error) {
		p.metrics.partitionRefresh(topic, err)
		if err != nil {
			p.logger.Warn("partition count refresh failed", "topic", topic, "error", err)
		}
	}

	if o.tracing != nil && o.tracing.Enabled {
		p.tracer = NewTracingService(o.tracing)
	}

	go p.handleEvents()

	return p
}

// Topic returns the destination topic
func (p *Producer[K, V]) Topic() string {
	return p.topic
}

// Partitions exposes the partition count cache
func (p *Producer[K, V]) Partitions() *PartitionCache {
	return p.partitions
}

// HealthChecker returns a health checker sharing the producer's connection
func (p *Producer[K, V]) HealthChecker() *HealthChecker {
	return NewHealthChecker(p.client)
}

// Send encodes key and payload and writes them as one record, returning once
// the broker acknowledged the write. A nil key or payload is sent as absent.
// Send never retries.
func (p *Producer[K, V]) Send(ctx context.Context, key *K, payload *V) error {
	if p.closed.Load() {
		return ErrClosed
	}

	var keyBytes, valueBytes []byte
	if key != nil {
		b, err := p.keyCodec.Encode(*key)
		if err != nil {
			return p.fail(&SendError{Topic: p.topic, Err: err})
		}
		keyBytes = b
	}
	if payload != nil {
		b, err := p.valueCodec.Encode(*payload)
		if err != nil {
			return p.fail(&SendError{Topic: p.topic, Err: err})
		}
		valueBytes = b
	}

	partition := p.partitions.Pick(ctx)

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: partition,
		},
		Key:   keyBytes,
		Value: valueBytes,
	}

	var endSpan func(error)
	if p.tracer != nil {
		ctx, endSpan = p.tracer.StartProducerSpan(ctx, p.topic, partition, keyBytes)
		p.tracer.InjectTraceContext(ctx, msg)
	}

	err := p.produce(ctx, msg)
	if endSpan != nil {
		endSpan(err)
	}
	if err != nil {
		return p.fail(&SendError{Topic: p.topic, Err: err})
	}

	p.metrics.recordSent(p.topic)
	return nil
}

func (p *Producer[K, V]) produce(ctx context.Context, msg *kafka.Message) error {
	deliveryChan := make(chan kafka.Event, 1)
	if err := p.client.Produce(msg, deliveryChan); err != nil {
		return err
	}

	select {
	case e := <-deliveryChan:
		switch ev := e.(type) {
		case *kafka.Message:
			return ev.TopicPartition.Error
		case kafka.Error:
			return ev
		default:
			return fmt.Errorf("unexpected delivery event %T", e)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer[K, V]) fail(err *SendError) error {
	p.metrics.recordSendError(p.topic, err.Severity())
	return err
}

// fetchPartitionCount asks the broker for the topic's partition count
func (p *Producer[K, V]) fetchPartitionCount(ctx context.Context) (int32, error) {
	timeoutMs, err := metadataTimeout(ctx, DefaultMetadataTimeout)
	if err != nil {
		return 0, err
	}

	metadata, err := p.client.GetMetadata(&p.topic, false, timeoutMs)
	if err != nil {
		return 0, err
	}

	topicMeta, ok := metadata.Topics[p.topic]
	if !ok {
		return 0, fmt.Errorf("topic %q missing from metadata", p.topic)
	}
	if topicMeta.Error.Code() != kafka.ErrNoError {
		return 0, topicMeta.Error
	}
	if len(topicMeta.Partitions) == 0 {
		return 0, errNoPartitions
	}
	return int32(len(topicMeta.Partitions)), nil
}

// Close flushes outstanding records and closes the producer.
// Calling Close more than once is a no-op.
func (p *Producer[K, V]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(p.done)

	var err error
	if remaining := p.client.Flush(int(p.opts.flushTimeout.Milliseconds())); remaining > 0 {
		err = fmt.Errorf("%d records still in queue after flush", remaining)
	}
	p.client.Close()
	return err
}

// handleEvents drains producer-level events such as broker errors
func (p *Producer[K, V]) handleEvents() {
	for {
		select {
		case <-p.done:
			return
		case e, ok := <-p.client.Events():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					p.logger.Error("delivery failed", "topic", p.topic, "error", ev.TopicPartition.Error)
				}
			case kafka.Error:
				if triage.Of(ev) == triage.Fatal {
					p.logger.Error("producer error", "topic", p.topic, "error", ev, "fatal", true)
				} else {
					p.logger.Warn("producer error", "topic", p.topic, "error", ev)
				}
			}
		}
	}
}

var errNoPartitions = errors.New("topic has no partitions")
