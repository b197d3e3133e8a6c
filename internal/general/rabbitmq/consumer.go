package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// deliveryDeadline bounds a single handler invocation so one slow message
// cannot stall the whole queue.
const deliveryDeadline = 30 * time.Second

// Consume reads a queue with manual acknowledgements until ctx is cancelled
// or the channel dies. Handler errors nack without requeue so poison
// messages are dropped instead of looping.
func (c *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := c.openConsumeChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queue, err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case amqpErr := <-closed:
			if amqpErr == nil {
				return nil
			}
			return fmt.Errorf("rabbitmq: channel lost on %s: %w", queue, amqpErr)

		case d, open := <-deliveries:
			if !open {
				return nil
			}
			c.settle(ctx, d, handler)
		}
	}
}

// settle runs the handler under a deadline and acks or drops the delivery.
func (c *Client) settle(ctx context.Context, d amqp.Delivery, handler func(context.Context, amqp.Delivery) error) {
	hctx, cancel := context.WithTimeout(ctx, deliveryDeadline)
	defer cancel()

	if err := handler(hctx, d); err != nil {
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// openConsumeChannel gives the consumer its own channel so handler backpressure
// never blocks publishing, with QoS applied before the first delivery.
func (c *Client) openConsumeChannel(prefetch int) (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: consume channel: %w", err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: qos %d: %w", prefetch, err)
	}
	return ch, nil
}
