package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// fakeProducer acknowledges every record synchronously
type fakeProducer struct {
	mu       sync.Mutex
	produced []*kafka.Message

	partitions    atomic.Int32
	metadataCalls atomic.Int32
	metadataErr   error

	produceErr  error
	deliveryErr error

	events chan kafka.Event
	closed atomic.Bool
}

func newFakeProducer(partitions int32) *fakeProducer {
	f := &fakeProducer{events: make(chan kafka.Event)}
	f.partitions.Store(partitions)
	return f
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}

	f.mu.Lock()
	f.produced = append(f.produced, msg)
	f.mu.Unlock()

	report := *msg
	report.TopicPartition.Error = f.deliveryErr
	deliveryChan <- &report
	return nil
}

func (f *fakeProducer) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error) {
	f.metadataCalls.Add(1)
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}

	meta := &kafka.Metadata{
		Brokers: []kafka.BrokerMetadata{{ID: 1, Host: "localhost", Port: 9092}},
		Topics:  make(map[string]kafka.TopicMetadata),
	}
	if topic != nil {
		parts := make([]kafka.PartitionMetadata, f.partitions.Load())
		for i := range parts {
			parts[i] = kafka.PartitionMetadata{ID: int32(i), Leader: 1, Replicas: []int32{1}, Isrs: []int32{1}}
		}
		meta.Topics[*topic] = kafka.TopicMetadata{Topic: *topic, Partitions: parts}
	}
	return meta, nil
}

func (f *fakeProducer) Events() chan kafka.Event { return f.events }

func (f *fakeProducer) Flush(timeoutMs int) int { return 0 }

func (f *fakeProducer) Close() { f.closed.Store(true) }

func (f *fakeProducer) messages() []*kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*kafka.Message, len(f.produced))
	copy(out, f.produced)
	return out
}

// fakeAdmin records created topics
type fakeAdmin struct {
	specs  []kafka.TopicSpecification
	code   kafka.ErrorCode
	err    error
	closed bool
}

func (f *fakeAdmin) CreateTopics(_ context.Context, topics []kafka.TopicSpecification, _ ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, topics...)

	results := make([]kafka.TopicResult, 0, len(topics))
	for _, t := range topics {
		results = append(results, kafka.TopicResult{
			Topic: t.Topic,
			Error: kafka.NewError(f.code, "create topic", false),
		})
	}
	return results, nil
}

func (f *fakeAdmin) Close() { f.closed = true }

// fakeConsumer serves scripted reads
type fakeConsumer struct {
	reads chan readResult

	subscribes   atomic.Int32
	subscribeErr error
	closed       atomic.Bool
}

type readResult struct {
	msg *kafka.Message
	err error
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{reads: make(chan readResult, 1024)}
}

func (f *fakeConsumer) SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error {
	f.subscribes.Add(1)
	return f.subscribeErr
}

func (f *fakeConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-f.reads:
		return r.msg, r.err
	case <-timer.C:
		return nil, kafka.NewError(kafka.ErrTimedOut, "Local: Timed out", false)
	}
}

func (f *fakeConsumer) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeConsumer) push(msg *kafka.Message) {
	f.reads <- readResult{msg: msg}
}

func (f *fakeConsumer) pushErr(err error) {
	f.reads <- readResult{err: err}
}

var offsets atomic.Int64

// record builds a message whose key and value are JSON strings
func record(topic, key, value string) *kafka.Message {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: 0,
			Offset:    kafka.Offset(offsets.Add(1)),
		},
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = []byte(strconv.Quote(key))
	}
	if value != "" {
		msg.Value = []byte(strconv.Quote(value))
	}
	return msg
}

// captureLogger keeps every entry for assertions
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s %s", level, msg))
}

func (l *captureLogger) Debug(msg string, _ ...interface{}) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...interface{})  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...interface{})  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...interface{}) { l.add("error", msg) }

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// exitRecorder stands in for os.Exit
type exitRecorder struct {
	calls atomic.Int32
	code  atomic.Int32
}

func (e *exitRecorder) exit(code int) {
	e.code.Store(int32(code))
	e.calls.Add(1)
}
