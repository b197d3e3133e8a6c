package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/hub"
	"tow-dispatch/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// truckLocationMessage is the telemetry payload arriving on the location
// fanout from the tracker ingest.
type truckLocationMessage struct {
	TruckID   string    `json:"truck_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationConsumer drains the truck location queue into the fleet store and
// the live location hub, mirroring what the gateway does for locations
// reported directly over WebSocket.
type LocationConsumer struct {
	logger *logger.Logger
	client *Client
	hub    *hub.Hub
	trucks ports.TruckStore
	orders ports.OrderStore
}

// NewLocationConsumer wires the consumer.
func NewLocationConsumer(log *logger.Logger, client *Client, locationHub *hub.Hub, trucks ports.TruckStore, orders ports.OrderStore) *LocationConsumer {
	return &LocationConsumer{
		logger: log,
		client: client,
		hub:    locationHub,
		trucks: trucks,
		orders: orders,
	}
}

// Run consumes until ctx is cancelled.
func (c *LocationConsumer) Run(ctx context.Context) error {
	return c.client.Consume(ctx, QueueTruckLocations, "dispatch-location-consumer", 32, c.handle)
}

func (c *LocationConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var msg truckLocationMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error(ctx, "location_message_invalid", "Failed to decode truck location message", err, nil)
		return fmt.Errorf("decode location message: %w", err)
	}
	if msg.TruckID == "" {
		return errors.New("location message without truck_id")
	}

	point, err := geo.NewPoint(msg.Latitude, msg.Longitude)
	if err != nil {
		return fmt.Errorf("location message for truck %s: %w", msg.TruckID, err)
	}
	at := msg.Timestamp.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if err := c.trucks.UpdateLocation(ctx, msg.TruckID, point, at); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// unknown truck; drop without retry
			c.logger.Debug(ctx, "location_unknown_truck", "Location for unregistered truck dropped", map[string]any{
				"truck_id": msg.TruckID,
			})
			return nil
		}
		return err
	}

	evt := hub.Event{
		TruckID:   msg.TruckID,
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
		Timestamp: at,
	}
	c.hub.Publish(hub.TruckTopic(msg.TruckID), evt)

	o, err := c.orders.ActiveOrderForTruck(ctx, msg.TruckID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil // idle truck
		}
		return err
	}
	evt.OrderID = o.ID
	c.hub.Publish(hub.OrderTopic(o.ID), evt)
	return nil
}
