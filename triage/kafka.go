package triage

import (
	"errors"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

var kafkaTransientCodes = map[kafka.ErrorCode]struct{}{
	kafka.ErrPartitionEOF:                 {},
	kafka.ErrTimedOut:                     {},
	kafka.ErrTimedOutQueue:                {},
	kafka.ErrMsgTimedOut:                  {},
	kafka.ErrTransport:                    {},
	kafka.ErrAllBrokersDown:               {},
	kafka.ErrResolve:                      {},
	kafka.ErrIntr:                         {},
	kafka.ErrRetry:                        {},
	kafka.ErrQueueFull:                    {},
	kafka.ErrWaitCoord:                    {},
	kafka.ErrInProgress:                   {},
	kafka.ErrUnknownTopicOrPart:           {},
	kafka.ErrLeaderNotAvailable:           {},
	kafka.ErrNotLeaderForPartition:        {},
	kafka.ErrRequestTimedOut:              {},
	kafka.ErrBrokerNotAvailable:           {},
	kafka.ErrNetworkException:             {},
	kafka.ErrCoordinatorNotAvailable:      {},
	kafka.ErrNotCoordinator:               {},
	kafka.ErrRebalanceInProgress:          {},
	kafka.ErrNotEnoughReplicas:            {},
	kafka.ErrNotEnoughReplicasAfterAppend: {},
}

var kafkaFatalCodes = map[kafka.ErrorCode]struct{}{
	kafka.ErrFatal:                {},
	kafka.ErrKeySerialization:     {},
	kafka.ErrValueSerialization:   {},
	kafka.ErrKeyDeserialization:   {},
	kafka.ErrValueDeserialization: {},
}

var kafkaPermanentCodes = map[kafka.ErrorCode]struct{}{
	kafka.ErrBadMsg:          {},
	kafka.ErrBadCompression:  {},
	kafka.ErrInvalidArg:      {},
	kafka.ErrInvalidMsg:      {},
	kafka.ErrInvalidMsgSize:  {},
	kafka.ErrMsgSizeTooLarge: {},
	kafka.ErrInvalidRecord:   {},
}

// classifyKafka classifies broker errors by protocol code first, then by the
// flags librdkafka attaches to the error
func classifyKafka(err error) (Severity, bool) {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return 0, false
	}

	code := kerr.Code()
	if _, ok := kafkaFatalCodes[code]; ok {
		return Fatal, true
	}
	if _, ok := kafkaTransientCodes[code]; ok {
		return Transient, true
	}
	if _, ok := kafkaPermanentCodes[code]; ok {
		return Permanent, true
	}

	switch {
	case kerr.IsFatal():
		return Fatal, true
	case kerr.IsRetriable(), kerr.IsTimeout():
		return Transient, true
	default:
		return Permanent, true
	}
}
