package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sourcegraph/conc/panics"

	"github.com/loipv/hubcore/triage"
)

var errStreamEnded = errors.New("record stream ended")

// Consumer receives the records of a MessageGroup and runs a handler for
// every decoded event
type Consumer[G any] struct {
	client  consumerClient
	group   MessageGroup[G]
	groupID string
	topics  []string
	opts    *consumerOptions
	tracer  *TracingService
	logger  Logger
	metrics *Metrics
	running atomic.Bool
	closed  atomic.Bool
}

// NewConsumer creates a consumer in the group "<group name>@<service name>"
// and subscribes it to the group's topics
func NewConsumer[G any](cfg ConsumerConfig, group MessageGroup[G], opts ...ConsumerOption) (*Consumer[G], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		return nil, ErrServiceRequired
	}
	if len(group.Topics()) == 0 {
		return nil, ErrNoTopics
	}

	o := newDefaultConsumerOptions()
	for _, opt := range opts {
		opt(o)
	}

	groupID := fmt.Sprintf("%s@%s", group.Name(), cfg.ServiceName)

	configMap := cfg.configMap()
	configMap.SetKey("group.id", groupID)
	configMap.SetKey("auto.offset.reset", getOffsetReset(o.fromBeginning))
	configMap.SetKey("enable.auto.commit", true)

	if o.sessionTimeout > 0 {
		configMap.SetKey("session.timeout.ms", int(o.sessionTimeout.Milliseconds()))
	}

	if o.heartbeatInterval > 0 {
		configMap.SetKey("heartbeat.interval.ms", int(o.heartbeatInterval.Milliseconds()))
	}

	if o.autoCommitInterval > 0 {
		configMap.SetKey("auto.commit.interval.ms", int(o.autoCommitInterval.Milliseconds()))
	}

	if o.assignor != "" {
		configMap.SetKey("partition.assignment.strategy", string(o.assignor))
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	c := newConsumer(consumer, group, groupID, o)
	if err := c.subscribe(); err != nil {
		consumer.Close()
		return nil, err
	}
	return c, nil
}

func newConsumer[G any](client consumerClient, group MessageGroup[G], groupID string, o *consumerOptions) *Consumer[G] {
	logger := o.logger
	if logger == nil {
		logger = NewDefaultLogger(LogLevelInfo)
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	c := &Consumer[G]{
		client:  client,
		group:   group,
		groupID: groupID,
		topics:  group.Topics(),
		opts:    o,
		logger:  logger,
		metrics: metrics,
	}

	if o.tracing != nil && o.tracing.Enabled {
		c.tracer = NewTracingService(o.tracing)
	}

	return c
}

// GroupID returns the consumer group id
func (c *Consumer[G]) GroupID() string {
	return c.groupID
}

func (c *Consumer[G]) subscribe() error {
	if err := c.client.SubscribeTopics(c.topics, c.createRebalanceCallback()); err != nil {
		return fmt.Errorf("failed to subscribe to topics %v: %w", c.topics, err)
	}
	return nil
}

// Consume runs the consume loop until ctx is cancelled.
//
// Every decoded event is handed to its own goroutine running handler. A
// Transient handler error is retried with delays drawn from policy, a
// Permanent error drops the event, and a Fatal error or a handler panic
// terminates the process after the abort grace delay. Receive failures and
// lost connections are retried with the stream backoff; exhausting it also
// terminates the process.
//
// Cancelling ctx stops receiving but does not interrupt running handlers.
func (c *Consumer[G]) Consume(ctx context.Context, policy BackoffConfig, handler Handler[G]) error {
	if handler == nil {
		return ErrNilHandler
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	d := &driver[G]{
		c:        c,
		policy:   policy,
		handler:  handler,
		done:     make(chan *panics.Recovered),
		stopped:  make(chan struct{}),
		abortCh:  make(chan struct{}),
		exited:   make(chan struct{}),
		taskBase: context.WithoutCancel(ctx),
	}
	defer close(d.stopped)

	return d.run(ctx)
}

// Close closes the consumer. Calling Close more than once is a no-op.
func (c *Consumer[G]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.client.Close()
}

// driver is the state of one Consume call
type driver[G any] struct {
	c       *Consumer[G]
	policy  BackoffConfig
	handler Handler[G]

	// done receives one value per finished task, non-nil if it panicked
	done chan *panics.Recovered
	// stopped is closed when Consume returns
	stopped chan struct{}

	aborting atomic.Bool
	abortCh  chan struct{}
	exited   chan struct{}

	taskBase context.Context
}

func (d *driver[G]) run(ctx context.Context) error {
	outer := d.c.opts.streamBackoff.newSequence()

	for connects := 0; ; connects++ {
		if connects > 0 {
			d.c.metrics.Reconnects.WithLabelValues(d.c.groupID).Inc()
			d.c.logger.Info("reconnecting record stream", "group", d.c.groupID, "attempt", connects)
		}

		if err := d.c.subscribe(); err != nil {
			if err := d.fail(ctx, outer, err); err != nil {
				return err
			}
			continue
		}

		stream := openStream(d.c.client, d.c.opts.pollTimeout)
		err := d.receive(ctx, stream, outer)
		stream.close()
		if err != nil {
			return err
		}

		d.c.logger.Warn("record stream ended", "group", d.c.groupID)
		if err := d.sleep(ctx, outer, errStreamEnded); err != nil {
			return err
		}
	}
}

// receive multiplexes the record stream with task completions. It returns
// nil when the stream ends.
func (d *driver[G]) receive(ctx context.Context, stream *recordStream, outer backoff.BackOff) error {
	for {
		select {
		case item, ok := <-stream.items:
			if !ok {
				return nil
			}
			if item.err != nil {
				if err := d.fail(ctx, outer, item.err); err != nil {
					return err
				}
				continue
			}

			event, err := d.c.group.Decode(item.rec)
			if err != nil {
				if err := d.fail(ctx, outer, err); err != nil {
					return err
				}
				continue
			}

			outer.Reset()
			d.c.metrics.Records.WithLabelValues(d.c.groupID, item.rec.Topic).Inc()
			d.spawn(event, item.rec)

		case recovered := <-d.done:
			if err := d.taskDone(recovered); err != nil {
				return err
			}

		case <-d.abortCh:
			return d.awaitExit()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fail handles a receive or decode error
func (d *driver[G]) fail(ctx context.Context, outer backoff.BackOff, err error) error {
	d.c.metrics.recordRecvError(d.c.groupID, err)

	if triage.Of(err) == triage.Fatal {
		return d.abort("fatal error receiving records", err)
	}

	d.c.logger.Warn("error receiving records", "group", d.c.groupID, "error", err)
	return d.sleep(ctx, outer, err)
}

// sleep waits for the next outer delay while still collecting finished
// tasks. An exhausted sequence aborts.
func (d *driver[G]) sleep(ctx context.Context, outer backoff.BackOff, cause error) error {
	delay := outer.NextBackOff()
	if delay == backoff.Stop {
		return d.abort("too many consecutive stream errors", cause)
	}
	d.c.metrics.Backoffs.WithLabelValues(d.c.groupID).Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case recovered := <-d.done:
			if err := d.taskDone(recovered); err != nil {
				return err
			}
		case <-d.abortCh:
			return d.awaitExit()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *driver[G]) taskDone(recovered *panics.Recovered) error {
	if recovered == nil {
		return nil
	}
	return d.abort("handler task panicked", recovered.AsError())
}

func (d *driver[G]) spawn(event G, rec *Record) {
	inFlight := d.c.metrics.InFlight.WithLabelValues(d.c.groupID)
	inFlight.Inc()

	go func() {
		var catcher panics.Catcher
		catcher.Try(func() { d.handle(event, rec) })
		inFlight.Dec()

		recovered := catcher.Recovered()
		if recovered != nil {
			d.outcome(OutcomePanic)
		}
		select {
		case d.done <- recovered:
		case <-d.stopped:
			if recovered != nil {
				d.c.logger.Error("handler task panicked after consumer stopped",
					"group", d.c.groupID, "error", recovered.AsError())
			}
		}
	}()
}

// handle runs the handler for one event until it succeeds, is dropped or
// aborts the process
func (d *driver[G]) handle(event G, rec *Record) {
	ctx := d.taskBase
	retries := d.policy.newSequence()

	for attempt := 1; ; attempt++ {
		if d.aborting.Load() {
			return
		}

		err := d.invoke(ctx, cloneEvent(event), rec, attempt)
		if err == nil {
			d.outcome(OutcomeSuccess)
			return
		}

		switch severity := triage.Of(err); severity {
		case triage.Transient:
			delay := retries.NextBackOff()
			if delay == backoff.Stop {
				d.outcome(OutcomeExhausted)
				d.c.logger.Warn("giving up on event after transient errors",
					"group", d.c.groupID, "topic", rec.Topic, "offset", rec.Offset,
					"attempts", attempt, "error", err)
				return
			}

			d.outcome(OutcomeRetry)
			d.c.logger.Debug("retrying event", "group", d.c.groupID, "topic", rec.Topic,
				"offset", rec.Offset, "attempt", attempt, "delay", delay, "error", err)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-d.abortCh:
				timer.Stop()
				return
			}

		case triage.Fatal:
			d.outcome(OutcomeFatal)
			_ = d.abort("fatal error handling event", err)
			return

		default:
			d.outcome(OutcomeDropped)
			d.c.logger.Error("dropping event", "group", d.c.groupID, "topic", rec.Topic,
				"offset", rec.Offset, "severity", severity, "error", err)
			return
		}
	}
}

func (d *driver[G]) invoke(ctx context.Context, event G, rec *Record, attempt int) error {
	if d.c.tracer == nil {
		return d.handler(ctx, event)
	}

	ctx, endSpan := d.c.tracer.StartConsumerSpan(ctx, d.c.groupID, rec, attempt)
	err := d.handler(ctx, event)
	endSpan(err)
	return err
}

func (d *driver[G]) outcome(outcome string) {
	d.c.metrics.HandlerOutcomes.WithLabelValues(d.c.groupID, outcome).Inc()
}

// abort logs err, waits the grace delay and exits the process. Only the
// first caller does so; every caller returns once the exit hook returned.
func (d *driver[G]) abort(reason string, err error) error {
	if d.aborting.CompareAndSwap(false, true) {
		close(d.abortCh)
		d.c.logger.Error(reason, "group", d.c.groupID, "error", err,
			"severity", triage.Of(err), "grace", d.c.opts.abortGrace)

		time.Sleep(d.c.opts.abortGrace)
		d.c.opts.exit(1)
		close(d.exited)
	}
	return d.awaitExit()
}

// awaitExit blocks until the exit hook of an abort has returned
func (d *driver[G]) awaitExit() error {
	<-d.exited
	return ErrAborted
}

func cloneEvent[G any](event G) G {
	if c, ok := any(event).(Cloner[G]); ok {
		return c.Clone()
	}
	return event
}

// createRebalanceCallback creates a kafka.RebalanceCb from the user's RebalanceCallback
func (c *Consumer[G]) createRebalanceCallback() kafka.RebalanceCb {
	if c.opts.rebalanceCallback == nil {
		return nil
	}

	return func(consumer *kafka.Consumer, event kafka.Event) error {
		switch e := event.(type) {
		case kafka.AssignedPartitions:
			c.logger.Info("partitions assigned", "group", c.groupID, "partitions", e.Partitions)

			if err := c.opts.rebalanceCallback(RebalanceEvent{
				Type:       "assigned",
				Partitions: toTopicPartitions(e.Partitions),
			}); err != nil {
				c.logger.Error("rebalance callback failed", "type", "assigned", "error", err)
				return err
			}
			return consumer.Assign(e.Partitions)

		case kafka.RevokedPartitions:
			c.logger.Info("partitions revoked", "group", c.groupID, "partitions", e.Partitions)

			if err := c.opts.rebalanceCallback(RebalanceEvent{
				Type:       "revoked",
				Partitions: toTopicPartitions(e.Partitions),
			}); err != nil {
				c.logger.Error("rebalance callback failed", "type", "revoked", "error", err)
				return err
			}
			return consumer.Unassign()
		}

		return nil
	}
}

func toTopicPartitions(tps []kafka.TopicPartition) []TopicPartition {
	partitions := make([]TopicPartition, len(tps))
	for i, tp := range tps {
		partitions[i] = TopicPartition{
			Partition: tp.Partition,
			Offset:    int64(tp.Offset),
		}
		if tp.Topic != nil {
			partitions[i].Topic = *tp.Topic
		}
	}
	return partitions
}
