package kafka

import (
	"errors"
	"fmt"

	"github.com/loipv/hubcore/triage"
)

var (
	ErrBrokersRequired = errors.New("kafka: brokers are required")
	ErrTopicRequired   = errors.New("kafka: topic is required")
	ErrServiceRequired = errors.New("kafka: service name is required")
	ErrClosed          = errors.New("kafka: client is closed")
	ErrNilHandler      = errors.New("kafka: handler is nil")
	ErrRunning         = errors.New("kafka: consumer is already running")
	ErrNoTopics        = errors.New("kafka: message group has no topics")
	// ErrAborted is returned by Consume when the process exit hook returns
	// instead of terminating the process
	ErrAborted = errors.New("kafka: consumer aborted")
)

// SendError is returned when a record could not be written
type SendError struct {
	Topic string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("kafka: send to %q failed: %v", e.Topic, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Severity delegates to the underlying transport or codec error
func (e *SendError) Severity() triage.Severity { return triage.Of(e.Err) }

// RecvErrorKind identifies why a received record could not be turned into an event
type RecvErrorKind int

const (
	// RecvKafka means the broker client reported an error while reading
	RecvKafka RecvErrorKind = iota + 1
	// RecvDecode means the key or payload bytes were malformed
	RecvDecode
	// RecvBadTopic means the record came from a topic the group does not handle
	RecvBadTopic
	// RecvMissingKey means the group expects a key and the record had none
	RecvMissingKey
	// RecvMissingPayload means the group expects a payload and the record had none
	RecvMissingPayload
)

func (k RecvErrorKind) String() string {
	switch k {
	case RecvKafka:
		return "kafka"
	case RecvDecode:
		return "decode"
	case RecvBadTopic:
		return "bad_topic"
	case RecvMissingKey:
		return "missing_key"
	case RecvMissingPayload:
		return "missing_payload"
	default:
		return fmt.Sprintf("recv_error(%d)", int(k))
	}
}

// RecvError is reported for a record that could not be received or decoded
type RecvError struct {
	Kind  RecvErrorKind
	Topic string
	Err   error
}

func (e *RecvError) Error() string {
	switch e.Kind {
	case RecvKafka:
		return fmt.Sprintf("kafka: receive failed: %v", e.Err)
	case RecvDecode:
		return fmt.Sprintf("kafka: decode record from %q: %v", e.Topic, e.Err)
	case RecvBadTopic:
		return fmt.Sprintf("kafka: unexpected topic %q", e.Topic)
	case RecvMissingKey:
		return fmt.Sprintf("kafka: record from %q has no key", e.Topic)
	case RecvMissingPayload:
		return fmt.Sprintf("kafka: record from %q has no payload", e.Topic)
	default:
		return fmt.Sprintf("kafka: %s: %v", e.Kind, e.Err)
	}
}

func (e *RecvError) Unwrap() error { return e.Err }

// Severity is Transient for broker read errors and Permanent otherwise.
// A fatal broker error keeps its Fatal severity.
func (e *RecvError) Severity() triage.Severity {
	if e.Kind == RecvKafka {
		if triage.Of(e.Err) == triage.Fatal {
			return triage.Fatal
		}
		return triage.Transient
	}
	return triage.Permanent
}

func newBadTopicError(topic string) error {
	return &RecvError{Kind: RecvBadTopic, Topic: topic}
}
