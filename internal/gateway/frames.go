package gateway

import (
	"time"

	"tow-dispatch/internal/hub"
)

// Frame types exchanged over the gateway socket.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameLocation    = "location"

	frameUpdate      = "update"
	frameSubscribed  = "subscribed"
	frameTopicClosed = "topic_closed"
	frameError       = "error"
)

// inboundFrame is the envelope clients send. Topic is required for
// subscribe/unsubscribe; the coordinate fields only apply to location frames
// from drivers.
type inboundFrame struct {
	Type      string  `json:"type"`
	Topic     string  `json:"topic,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"` // optional RFC3339, defaults to server time
}

// locationPayload is the body of an update frame.
type locationPayload struct {
	TruckID   string    `json:"truck_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// outboundFrame is the envelope sent to clients.
type outboundFrame struct {
	Type     string           `json:"type"`
	Topic    string           `json:"topic,omitempty"`
	Error    string           `json:"error,omitempty"`
	Location *locationPayload `json:"location,omitempty"`
}

func updateFrame(evt hub.Event) outboundFrame {
	return outboundFrame{
		Type:  frameUpdate,
		Topic: evt.Topic,
		Location: &locationPayload{
			TruckID:   evt.TruckID,
			OrderID:   evt.OrderID,
			Latitude:  evt.Latitude,
			Longitude: evt.Longitude,
			UpdatedAt: evt.Timestamp,
		},
	}
}

func subscribedFrame(topic string) outboundFrame {
	return outboundFrame{Type: frameSubscribed, Topic: topic}
}

func topicClosedFrame(topic string) outboundFrame {
	return outboundFrame{Type: frameTopicClosed, Topic: topic}
}

func errorFrame(msg string) outboundFrame {
	return outboundFrame{Type: frameError, Error: msg}
}
