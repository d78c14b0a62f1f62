package kafka

import (
	"github.com/loipv/hubcore/codec"
)

// MessageGroup turns records from a fixed set of topics into one event type
type MessageGroup[G any] interface {
	// Name identifies the group; it prefixes the consumer group id
	Name() string
	// Topics lists the topics the group subscribes to
	Topics() []string
	// Decode builds an event from a record. Errors should be *RecvError.
	Decode(rec *Record) (G, error)
}

// TopicDecoder decodes the records of one topic
type TopicDecoder[G any] func(rec *Record) (G, error)

// TopicTable is a MessageGroup dispatching on the record topic
type TopicTable[G any] struct {
	name     string
	topics   []string
	decoders map[string]TopicDecoder[G]
}

var _ MessageGroup[struct{}] = (*TopicTable[struct{}])(nil)

// NewTopicTable creates an empty table
func NewTopicTable[G any](name string) *TopicTable[G] {
	return &TopicTable[G]{
		name:     name,
		decoders: make(map[string]TopicDecoder[G]),
	}
}

// Register adds the decoder for a topic. Registering a topic twice replaces
// its decoder.
func (t *TopicTable[G]) Register(topic string, decoder TopicDecoder[G]) *TopicTable[G] {
	if _, ok := t.decoders[topic]; !ok {
		t.topics = append(t.topics, topic)
	}
	t.decoders[topic] = decoder
	return t
}

// Name returns the group name
func (t *TopicTable[G]) Name() string {
	return t.name
}

// Topics returns the registered topics in registration order
func (t *TopicTable[G]) Topics() []string {
	out := make([]string, len(t.topics))
	copy(out, t.topics)
	return out
}

// Decode dispatches rec to the decoder of its topic
func (t *TopicTable[G]) Decode(rec *Record) (G, error) {
	decoder, ok := t.decoders[rec.Topic]
	if !ok {
		var zero G
		return zero, newBadTopicError(rec.Topic)
	}
	return decoder(rec)
}

// Keyed builds a decoder for records that carry both a key and a payload
func Keyed[K, V, G any](keyCodec codec.Codec[K], valueCodec codec.Codec[V], build func(key K, payload V) G) TopicDecoder[G] {
	return func(rec *Record) (G, error) {
		var zero G
		if rec.Key == nil {
			return zero, &RecvError{Kind: RecvMissingKey, Topic: rec.Topic}
		}
		if rec.Value == nil {
			return zero, &RecvError{Kind: RecvMissingPayload, Topic: rec.Topic}
		}

		key, err := keyCodec.Decode(rec.Key)
		if err != nil {
			return zero, &RecvError{Kind: RecvDecode, Topic: rec.Topic, Err: err}
		}
		payload, err := valueCodec.Decode(rec.Value)
		if err != nil {
			return zero, &RecvError{Kind: RecvDecode, Topic: rec.Topic, Err: err}
		}
		return build(key, payload), nil
	}
}

// Payload builds a decoder for records whose key is ignored
func Payload[V, G any](valueCodec codec.Codec[V], build func(payload V) G) TopicDecoder[G] {
	return func(rec *Record) (G, error) {
		var zero G
		if rec.Value == nil {
			return zero, &RecvError{Kind: RecvMissingPayload, Topic: rec.Topic}
		}

		payload, err := valueCodec.Decode(rec.Value)
		if err != nil {
			return zero, &RecvError{Kind: RecvDecode, Topic: rec.Topic, Err: err}
		}
		return build(payload), nil
	}
}
