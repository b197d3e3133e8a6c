package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tow-dispatch/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmTimeout = 5 * time.Second

// StatusPublisher emits order lifecycle events onto the orders topic
// exchange. Routing key is "order.status.<NEW_STATUS>" so consumers can bind
// to exactly the edges they care about.
type StatusPublisher struct {
	Client *Client
}

var _ ports.StatusPublisher = (*StatusPublisher)(nil)

// NewStatusPublisher constructs a StatusPublisher using the provided client.
func NewStatusPublisher(client *Client) *StatusPublisher {
	return &StatusPublisher{Client: client}
}

// PublishOrderStatus serializes the event and publishes it with confirms.
func (p *StatusPublisher) PublishOrderStatus(ctx context.Context, evt ports.OrderStatusEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order status event: %w", err)
	}
	return p.Client.Publish(ExchangeOrderTopic, RouteOrderStatusPrefix+evt.NewStatus, body)
}

// Publish sends one persistent JSON message and waits for the broker
// confirm. Publishes are serialized so each waiter reads its own confirm.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	c.mu.RLock()
	conn, ch := c.conn, c.publishCh
	c.mu.RUnlock()

	switch {
	case conn == nil || conn.IsClosed():
		return errors.New("rabbitmq: not connected")
	case ch == nil || ch.IsClosed():
		return errors.New("rabbitmq: publish channel closed")
	}

	c.confirmMu.Lock()
	defer c.confirmMu.Unlock()
	confirms := c.confirms

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	err := ch.PublishWithContext(ctx, exchange, routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
	if err != nil {
		return err
	}

	select {
	case conf, open := <-confirms:
		if !open {
			return errors.New("rabbitmq: confirm stream replaced mid-publish")
		}
		if !conf.Ack {
			return errors.New("rabbitmq: broker rejected publish")
		}
		return nil
	case <-ctx.Done():
		// the confirm for this publish is still in flight; absorb it so the
		// next publish does not read a stale confirmation
		select {
		case <-confirms:
		case <-time.After(2 * time.Second):
		}
		return fmt.Errorf("rabbitmq: confirm wait: %w", ctx.Err())
	}
}
