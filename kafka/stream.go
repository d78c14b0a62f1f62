package kafka

import (
	"errors"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// consumerClient is the part of *kafka.Consumer used by Consumer
type consumerClient interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// streamItem is either a record or a receive error
type streamItem struct {
	rec *Record
	err error
}

// recordStream reads records on its own goroutine. The items channel is
// closed when the broker connection is lost or the stream is stopped.
type recordStream struct {
	items    chan streamItem
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func openStream(client consumerClient, pollTimeout time.Duration) *recordStream {
	s := &recordStream{
		items: make(chan streamItem),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.read(client, pollTimeout)
	return s
}

func (s *recordStream) read(client consumerClient, pollTimeout time.Duration) {
	defer close(s.done)
	defer close(s.items)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		var item streamItem
		msg, err := client.ReadMessage(pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				switch kerr.Code() {
				case kafka.ErrTimedOut:
					// No record within the poll timeout
					continue
				case kafka.ErrAllBrokersDown:
					return
				}
			}
			item.err = &RecvError{Kind: RecvKafka, Err: err}
		} else {
			item.rec = newRecord(msg)
		}

		select {
		case s.items <- item:
		case <-s.stop:
			return
		}
	}
}

// close stops the reader and waits for it to exit
func (s *recordStream) close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
