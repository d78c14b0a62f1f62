package kafka

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ClientConfig holds the connection settings shared by producers and consumers
type ClientConfig struct {
	// Connection
	Brokers           []string
	ClientID          string
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration

	// SSL/SASL
	SSL  bool
	SASL *SASLConfig
}

// SASLConfig holds SASL authentication configuration
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled       bool
	TracerName    string
	TracerVersion string
}

// ProducerConfig is the startup configuration of a Producer
type ProducerConfig struct {
	ClientConfig
	Topic string
}

// producerOptions holds the tunables of a Producer
type producerOptions struct {
	acks              Acks
	compression       Compression
	idempotent        bool
	numPartitions     int
	replicationFactor int
	refreshInterval   time.Duration
	flushTimeout      time.Duration
	logger            Logger
	tracing           *TracingConfig
	metrics           *Metrics
}

// ProducerOption is a function that configures the producer
type ProducerOption func(*producerOptions)

// Default values
var (
	DefaultConnectionTimeout        = 10 * time.Second
	DefaultRequestTimeout           = 30 * time.Second
	DefaultSessionTimeout           = 30 * time.Second
	DefaultHeartbeatInterval        = 3 * time.Second
	DefaultAutoCommitInterval       = 5 * time.Second
	DefaultPollTimeout              = 100 * time.Millisecond
	DefaultPartitionRefreshInterval = 5 * time.Minute
	DefaultFlushTimeout             = 10 * time.Second
	DefaultMetadataTimeout          = 10 * time.Second
	DefaultAbortGrace               = 5 * time.Second
	DefaultSASLMechanism            = "SCRAM-SHA-512"
)

// ==================== Producer Options ====================

// WithAcks sets the acknowledgment level
func WithAcks(acks Acks) ProducerOption {
	return func(o *producerOptions) {
		o.acks = acks
	}
}

// WithCompression sets the compression type
func WithCompression(compression Compression) ProducerOption {
	return func(o *producerOptions) {
		o.compression = compression
	}
}

// WithIdempotent enables idempotent producer
func WithIdempotent(enabled bool) ProducerOption {
	return func(o *producerOptions) {
		o.idempotent = enabled
	}
}

// WithTopicSpec sets the partition count and replication factor used when
// the producer creates its topic. Existing topics are left untouched.
func WithTopicSpec(partitions, replicationFactor int) ProducerOption {
	return func(o *producerOptions) {
		o.numPartitions = partitions
		o.replicationFactor = replicationFactor
	}
}

// WithPartitionRefreshInterval sets how long a cached partition count is trusted
func WithPartitionRefreshInterval(interval time.Duration) ProducerOption {
	return func(o *producerOptions) {
		o.refreshInterval = interval
	}
}

// WithFlushTimeout bounds how long Close waits for in-flight records
func WithFlushTimeout(timeout time.Duration) ProducerOption {
	return func(o *producerOptions) {
		o.flushTimeout = timeout
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = logger
	}
}

// WithTracing sets tracing configuration
func WithTracing(tracing *TracingConfig) ProducerOption {
	return func(o *producerOptions) {
		o.tracing = tracing
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *Metrics) ProducerOption {
	return func(o *producerOptions) {
		o.metrics = metrics
	}
}

// ==================== Default Configs ====================

func newDefaultProducerOptions() *producerOptions {
	return &producerOptions{
		acks:              AcksAll,
		compression:       CompressionNone,
		numPartitions:     1,
		replicationFactor: 1,
		refreshInterval:   DefaultPartitionRefreshInterval,
		flushTimeout:      DefaultFlushTimeout,
	}
}

func (c ClientConfig) validate() error {
	if len(c.Brokers) == 0 {
		return ErrBrokersRequired
	}
	return nil
}

// configMap builds the librdkafka settings common to every client
func (c ClientConfig) configMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(c.Brokers, ","),
	}

	if c.ClientID != "" {
		configMap.SetKey("client.id", c.ClientID)
	}

	if c.ConnectionTimeout > 0 {
		configMap.SetKey("socket.connection.setup.timeout.ms", int(c.ConnectionTimeout.Milliseconds()))
	}

	if c.RequestTimeout > 0 {
		configMap.SetKey("request.timeout.ms", int(c.RequestTimeout.Milliseconds()))
	}

	configMap.SetKey("security.protocol", c.securityProtocol())

	if c.SASL != nil {
		mechanism := c.SASL.Mechanism
		if mechanism == "" {
			mechanism = DefaultSASLMechanism
		}
		configMap.SetKey("sasl.mechanism", mechanism)
		configMap.SetKey("sasl.username", c.SASL.Username)
		configMap.SetKey("sasl.password", c.SASL.Password)
	}

	return configMap
}

func (c ClientConfig) securityProtocol() string {
	switch {
	case c.SASL != nil && c.SSL:
		return "sasl_ssl"
	case c.SASL != nil:
		return "sasl_plaintext"
	case c.SSL:
		return "ssl"
	default:
		return "plaintext"
	}
}
