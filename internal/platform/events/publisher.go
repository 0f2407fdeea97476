// Package events publishes stock lifecycle notifications to a broker so
// downstream consumers (reconciliation jobs, branch dashboards) can react
// without polling the database.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TypeBatchRegistered = "batch.registered"
	TypeBatchDeleted    = "batch.deleted"
	TypeStockIssued     = "stock.issued"
	TypeStockReceived   = "stock.received"
	TypeStockReturned   = "stock.returned"
)

type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Publisher is best-effort delivery; callers must not fail their transaction
// on a publish error.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// AMQP publishes events as JSON onto a single durable queue.
type AMQP struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQP{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQP) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.At,
		Type:        ev.Type,
		Body:        body,
	})
}

func (p *AMQP) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
