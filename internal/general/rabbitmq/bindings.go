package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Messaging topology. Order status events fan out by routing key so
// downstream services can subscribe to a single lifecycle edge; truck
// location telemetry arrives through a fanout exchange fed by the tracker
// ingest.
const (
	ExchangeOrderTopic     = "orders.topic"
	ExchangeLocationFanout = "locations.fanout"

	QueueOrderStatus    = "order_status_events"
	QueueTruckLocations = "truck_location_updates"

	RouteOrderStatusPrefix = "order.status."
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	exchanges := []struct {
		name string
		kind string
	}{
		{ExchangeOrderTopic, "topic"},
		{ExchangeLocationFanout, "fanout"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// 2. Queues
	queues := []string{
		QueueOrderStatus,
		QueueTruckLocations,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{QueueOrderStatus, ExchangeOrderTopic, RouteOrderStatusPrefix + "*"},
		{QueueTruckLocations, ExchangeLocationFanout, ""},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
