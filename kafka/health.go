package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// MetadataClient is implemented by every confluent client handle
type MetadataClient interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
}

// HealthChecker provides health check functionality for Kafka
type HealthChecker struct {
	client  MetadataClient
	closer  func()
	timeout time.Duration
}

// NewHealthChecker creates a health checker on top of an existing client
func NewHealthChecker(client MetadataClient) *HealthChecker {
	return &HealthChecker{
		client:  client,
		timeout: DefaultMetadataTimeout,
	}
}

// NewHealthCheckerWithConfig creates a health checker with its own admin
// connection. Close releases it.
func NewHealthCheckerWithConfig(cfg ClientConfig) (*HealthChecker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	admin, err := kafka.NewAdminClient(cfg.configMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}

	h := NewHealthChecker(admin)
	h.closer = admin.Close
	return h, nil
}

// SetTimeout sets the health check timeout
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

// Close releases a connection owned by the checker
func (h *HealthChecker) Close() {
	if h.closer != nil {
		h.closer()
		h.closer = nil
	}
}

// Check performs a basic health check
func (h *HealthChecker) Check(ctx context.Context) *HealthResult {
	metadata, err := h.metadata(ctx, nil)
	if err != nil {
		return down(err, nil)
	}

	if len(metadata.Brokers) == 0 {
		return down(errNoBrokers, nil)
	}

	return &HealthResult{
		Status: HealthStatusUp,
		Details: map[string]interface{}{
			"brokers":       len(metadata.Brokers),
			"topics":        len(metadata.Topics),
			"originatingId": metadata.OriginatingBroker.ID,
		},
	}
}

// CheckTopic checks if a topic exists and is accessible
func (h *HealthChecker) CheckTopic(ctx context.Context, topic string) *HealthResult {
	details := map[string]interface{}{"topic": topic}

	metadata, err := h.metadata(ctx, &topic)
	if err != nil {
		return down(err, details)
	}

	topicMeta, ok := metadata.Topics[topic]
	if !ok {
		return down(fmt.Errorf("topic not found: %s", topic), details)
	}

	if topicMeta.Error.Code() != kafka.ErrNoError {
		return down(topicMeta.Error, details)
	}

	partitionInfos := make([]map[string]interface{}, 0, len(topicMeta.Partitions))
	for _, p := range topicMeta.Partitions {
		partitionInfos = append(partitionInfos, map[string]interface{}{
			"id":       p.ID,
			"leader":   p.Leader,
			"replicas": len(p.Replicas),
			"isrs":     len(p.Isrs),
		})
	}

	details["partitionCount"] = len(topicMeta.Partitions)
	details["partitions"] = partitionInfos
	return &HealthResult{
		Status:  HealthStatusUp,
		Details: details,
	}
}

var errNoBrokers = errors.New("no brokers available")

func (h *HealthChecker) metadata(ctx context.Context, topic *string) (*kafka.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeoutMs, err := metadataTimeout(ctx, h.timeout)
	if err != nil {
		return nil, err
	}
	return h.client.GetMetadata(topic, topic == nil, timeoutMs)
}

// metadataTimeout bounds limit by the ctx deadline and converts it to the
// millisecond timeout librdkafka expects. The result is at least 1, since
// librdkafka reads -1 as no timeout at all.
func metadataTimeout(ctx context.Context, limit time.Duration) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		if remaining < limit {
			limit = remaining
		}
	}

	ms := int(limit.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return ms, nil
}

func down(err error, details map[string]interface{}) *HealthResult {
	if details == nil {
		details = make(map[string]interface{}, 1)
	}
	details["error"] = err.Error()
	return &HealthResult{
		Status:  HealthStatusDown,
		Error:   err,
		Details: details,
	}
}
