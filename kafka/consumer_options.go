package kafka

import (
	"os"
	"time"
)

// ConsumerConfig is the startup configuration of a Consumer
type ConsumerConfig struct {
	ClientConfig
	// ServiceName is appended to the group name to form the consumer group id
	ServiceName string
}

// PartitionAssignor represents partition assignment strategy
type PartitionAssignor string

const (
	// AssignorRange assigns partitions based on ranges
	AssignorRange PartitionAssignor = "range"
	// AssignorRoundRobin assigns partitions in round-robin fashion
	AssignorRoundRobin PartitionAssignor = "roundrobin"
	// AssignorCooperativeSticky uses cooperative rebalancing with sticky assignment
	AssignorCooperativeSticky PartitionAssignor = "cooperative-sticky"
)

// consumerOptions holds the tunables of a Consumer
type consumerOptions struct {
	sessionTimeout     time.Duration
	heartbeatInterval  time.Duration
	autoCommitInterval time.Duration
	fromBeginning      bool
	assignor           PartitionAssignor
	pollTimeout        time.Duration
	streamBackoff      BackoffConfig
	abortGrace         time.Duration
	exit               func(code int)
	rebalanceCallback  RebalanceCallback
	logger             Logger
	tracing            *TracingConfig
	metrics            *Metrics
}

// ConsumerOption is a function that configures the consumer
type ConsumerOption func(*consumerOptions)

// ==================== Consumer Options ====================

// WithSessionTimeout sets the session timeout
func WithSessionTimeout(timeout time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.sessionTimeout = timeout
	}
}

// WithHeartbeatInterval sets the heartbeat interval
func WithHeartbeatInterval(interval time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.heartbeatInterval = interval
	}
}

// WithAutoCommitInterval sets auto commit interval
func WithAutoCommitInterval(interval time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.autoCommitInterval = interval
	}
}

// WithFromBeginning sets whether a new group starts from the earliest offset
func WithFromBeginning(enabled bool) ConsumerOption {
	return func(o *consumerOptions) {
		o.fromBeginning = enabled
	}
}

// WithPartitionAssignor sets the partition assignment strategy
func WithPartitionAssignor(assignor PartitionAssignor) ConsumerOption {
	return func(o *consumerOptions) {
		o.assignor = assignor
	}
}

// WithPollTimeout sets how long one read waits for a record
func WithPollTimeout(timeout time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.pollTimeout = timeout
	}
}

// WithStreamBackoff sets the backoff used between stream-level failures
// and reconnects
func WithStreamBackoff(cfg BackoffConfig) ConsumerOption {
	return func(o *consumerOptions) {
		o.streamBackoff = cfg
	}
}

// WithAbortGrace sets the delay between a fatal error and process exit
func WithAbortGrace(grace time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.abortGrace = grace
	}
}

// WithExitFunc replaces os.Exit as the final step of an abort
func WithExitFunc(exit func(code int)) ConsumerOption {
	return func(o *consumerOptions) {
		o.exit = exit
	}
}

// WithRebalanceCallback sets the rebalance callback
// The callback is invoked when partitions are assigned or revoked during a rebalance
func WithRebalanceCallback(callback RebalanceCallback) ConsumerOption {
	return func(o *consumerOptions) {
		o.rebalanceCallback = callback
	}
}

// ConsumerWithLogger sets a custom logger for consumer
func ConsumerWithLogger(logger Logger) ConsumerOption {
	return func(o *consumerOptions) {
		o.logger = logger
	}
}

// ConsumerWithTracing sets tracing configuration for consumer
func ConsumerWithTracing(tracing *TracingConfig) ConsumerOption {
	return func(o *consumerOptions) {
		o.tracing = tracing
	}
}

// ConsumerWithMetrics sets the metrics collector for consumer
func ConsumerWithMetrics(metrics *Metrics) ConsumerOption {
	return func(o *consumerOptions) {
		o.metrics = metrics
	}
}

// newDefaultConsumerOptions creates consumer options with default values
func newDefaultConsumerOptions() *consumerOptions {
	return &consumerOptions{
		sessionTimeout:     DefaultSessionTimeout,
		heartbeatInterval:  DefaultHeartbeatInterval,
		autoCommitInterval: DefaultAutoCommitInterval,
		assignor:           AssignorRange,
		pollTimeout:        DefaultPollTimeout,
		streamBackoff:      DefaultBackoffConfig(),
		abortGrace:         DefaultAbortGrace,
		exit:               os.Exit,
	}
}

func getOffsetReset(fromBeginning bool) string {
	if fromBeginning {
		return "earliest"
	}
	return "latest"
}
