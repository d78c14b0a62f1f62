package kafka

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Headers is a map of header key-value pairs
type Headers map[string][]byte

// Record is a raw record read from a topic
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Value     []byte
	Headers   Headers
}

// newRecord copies a broker message into a Record
func newRecord(msg *kafka.Message) *Record {
	rec := &Record{
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Timestamp: msg.Timestamp,
		Key:       msg.Key,
		Value:     msg.Value,
	}
	if msg.TopicPartition.Topic != nil {
		rec.Topic = *msg.TopicPartition.Topic
	}
	if len(msg.Headers) > 0 {
		rec.Headers = make(Headers, len(msg.Headers))
		for _, h := range msg.Headers {
			rec.Headers[h.Key] = h.Value
		}
	}
	return rec
}

// PartitionAny represents any partition
const PartitionAny int32 = -1

// Acks configuration for producer acknowledgment
type Acks int

const (
	// AcksNone - No acknowledgment
	AcksNone Acks = 0
	// AcksLeader - Leader acknowledgment only
	AcksLeader Acks = 1
	// AcksAll - All replicas acknowledgment
	AcksAll Acks = -1
)

// Compression types for message compression
type Compression int

const (
	// CompressionNone - No compression
	CompressionNone Compression = 0
	// CompressionGZIP - GZIP compression
	CompressionGZIP Compression = 1
	// CompressionSnappy - Snappy compression
	CompressionSnappy Compression = 2
	// CompressionLZ4 - LZ4 compression
	CompressionLZ4 Compression = 3
	// CompressionZSTD - ZSTD compression
	CompressionZSTD Compression = 4
)

func (c Compression) String() string {
	switch c {
	case CompressionGZIP:
		return "gzip"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// HealthStatus represents health check status
type HealthStatus string

const (
	// HealthStatusUp indicates the service is healthy
	HealthStatusUp HealthStatus = "UP"
	// HealthStatusDown indicates the service is unhealthy
	HealthStatusDown HealthStatus = "DOWN"
)

// HealthResult represents health check result
type HealthResult struct {
	Status  HealthStatus           `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   error                  `json:"-"`
}

// LogLevel represents logging level
type LogLevel int

const (
	// LogLevelNone - No logging
	LogLevelNone LogLevel = 0
	// LogLevelError - Error level
	LogLevelError LogLevel = 1
	// LogLevelWarn - Warning level
	LogLevelWarn LogLevel = 2
	// LogLevelInfo - Info level
	LogLevelInfo LogLevel = 3
	// LogLevelDebug - Debug level
	LogLevelDebug LogLevel = 4
)

// Handler processes one decoded event. The returned error is triaged:
// Transient errors are retried, Permanent errors drop the event and Fatal
// errors terminate the process.
type Handler[G any] func(ctx context.Context, event G) error

// Cloner is implemented by events that must be deep-copied before a retry
type Cloner[G any] interface {
	Clone() G
}

// RebalanceEvent represents a partition rebalance event
type RebalanceEvent struct {
	// Type is either "assigned" or "revoked"
	Type string
	// Partitions contains the affected topic-partitions
	Partitions []TopicPartition
}

// TopicPartition represents a topic and partition pair
type TopicPartition struct {
	Topic     string
	Partition int32
	Offset    int64
}

// RebalanceCallback is called when partitions are assigned or revoked
// Return an error to abort the rebalance (use with caution)
type RebalanceCallback func(event RebalanceEvent) error
