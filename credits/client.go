// Package credits reads credit prices and submits credit deduction events.
package credits

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/loipv/hubcore/codec"
	"github.com/loipv/hubcore/kafka"
)

// Topic receives every credit deduction event
const Topic = "credits_mpsc"

// Keys and events on Topic are JSON encoded
var (
	keyCodec   = codec.JSON[EventKey]()
	eventCodec = codec.JSON[Event]()
)

// Config is the startup configuration of a Client
type Config struct {
	CreditSheet string
	Kafka       kafka.ClientConfig
}

// EventKey identifies a credit transaction
type EventKey struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Credits is the body of a deduction event
type Credits struct {
	Credits      int64      `json:"credits"`
	Action       string     `json:"action"`
	Blockchain   Blockchain `json:"blockchain"`
	Organization string     `json:"organization"`
}

// Event is a credit deduction event. Exactly one field is set.
type Event struct {
	PendingDeduction *Credits `json:"pending_deduction,omitempty"`
	ConfirmDeduction *Credits `json:"confirm_deduction,omitempty"`
}

// TransactionID identifies a pending deduction. It must be confirmed or the
// deduction is discarded.
type TransactionID uuid.UUID

func (id TransactionID) String() string { return uuid.UUID(id).String() }

// eventSender is the part of kafka.Producer used by Client
type eventSender interface {
	Send(ctx context.Context, key *EventKey, payload *Event) error
	Close() error
}

// Client looks up credit costs and produces deduction events
type Client[I LineItem] struct {
	producer eventSender
	sheet    *Sheet[I]
	newID    func() (uuid.UUID, error)
}

// New loads the credit sheet and connects a producer to Topic. items lists
// every line item the service charges for.
func New[I LineItem](ctx context.Context, cfg Config, items []I, opts ...kafka.ProducerOption) (*Client[I], error) {
	sheet, err := LoadSheet(cfg.CreditSheet, items)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(ctx,
		kafka.ProducerConfig{ClientConfig: cfg.Kafka, Topic: Topic},
		keyCodec, eventCodec, opts...)
	if err != nil {
		return nil, err
	}

	return newClient(producer, sheet), nil
}

func newClient[I LineItem](producer eventSender, sheet *Sheet[I]) *Client[I] {
	return &Client[I]{
		producer: producer,
		sheet:    sheet,
		newID:    uuid.NewV7,
	}
}

// Sheet returns the loaded credit sheet
func (c *Client[I]) Sheet() *Sheet[I] {
	return c.sheet
}

// Cost returns the cost of item on chain in credits
func (c *Client[I]) Cost(item I, chain Blockchain) (uint64, error) {
	cost, ok := c.sheet.Cost(item, chain)
	if !ok {
		return 0, &DeductionError[I]{Item: item, Chain: chain, Kind: MissingItem}
	}
	return cost, nil
}

// SubmitPendingDeduction submits a pending deduction for item on chain and
// returns its transaction id. It fails without sending anything when the
// available balance does not cover the cost.
func (c *Client[I]) SubmitPendingDeduction(ctx context.Context, org, user uuid.UUID, item I, chain Blockchain, available uint64) (TransactionID, error) {
	cost, err := c.Cost(item, chain)
	if err != nil {
		return TransactionID{}, err
	}

	if available < cost {
		return TransactionID{}, &DeductionError[I]{
			Item: item, Chain: chain, Kind: InsufficientBalance,
			Available: available, Cost: cost,
		}
	}

	if cost > math.MaxInt64 {
		return TransactionID{}, &DeductionError[I]{Item: item, Chain: chain, Kind: InvalidCost, Cost: cost}
	}

	id, err := c.newID()
	if err != nil {
		return TransactionID{}, &DeductionError[I]{Item: item, Chain: chain, Kind: Send, Err: err}
	}

	key := &EventKey{ID: id.String(), UserID: user.String()}
	event := &Event{PendingDeduction: &Credits{
		Credits:      int64(cost),
		Action:       item.String(),
		Blockchain:   chain,
		Organization: org.String(),
	}}

	if err := c.producer.Send(ctx, key, event); err != nil {
		return TransactionID{}, &DeductionError[I]{Item: item, Chain: chain, Kind: Send, Err: err}
	}
	return TransactionID(id), nil
}

// ConfirmDeduction confirms the pending deduction with the given id
func (c *Client[I]) ConfirmDeduction(ctx context.Context, id TransactionID) error {
	return c.producer.Send(ctx,
		&EventKey{ID: id.String()},
		&Event{ConfirmDeduction: &Credits{}})
}

// Close flushes and closes the producer
func (c *Client[I]) Close() error {
	return c.producer.Close()
}
