package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tow-dispatch/internal/general/logger"
)

// Event is a single live-location update flowing through a topic. Events are
// ephemeral: only the newest one per topic is retained.
type Event struct {
	Topic     string
	TruckID   string
	OrderID   string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// Subscriber receives fan-out from topics it is registered under. Deliver
// must never block the publisher; sessions satisfy this with a bounded
// coalescing queue. TopicClosed tells the subscriber the topic was torn
// down by an order reaching a terminal state.
type Subscriber interface {
	Deliver(evt Event)
	TopicClosed(topic string)
}

// OrderTopic returns the topic key of an order's location stream.
func OrderTopic(orderID string) string { return fmt.Sprintf("order:%s", orderID) }

// TruckTopic returns the topic key of a truck's location stream.
func TruckTopic(truckID string) string { return fmt.Sprintf("truck:%s", truckID) }

// topicState holds one topic's subscriber set and retained event. Its mutex
// serializes publishes per topic so all subscribers observe the same relative
// order; unrelated topics never contend.
type topicState struct {
	mu     sync.Mutex
	subs   map[Subscriber]struct{}
	latest *Event
}

// Hub is the in-memory registry mapping topic keys to subscriber sets plus
// the most recent event per topic.
type Hub struct {
	logger *logger.Logger

	mu     sync.RWMutex
	topics map[string]*topicState
}

// New creates an empty Hub.
func New(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		topics: make(map[string]*topicState),
	}
}

// Publish retains evt as the topic's latest if its timestamp is newer than
// the stored one and fans it out to every current subscriber. Older or
// duplicate timestamps are silently dropped (stale events are not errors);
// the return value reports whether the event was accepted.
func (h *Hub) Publish(topic string, evt Event) bool {
	evt.Topic = topic
	ts := h.topicFor(topic, true)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.latest != nil && !evt.Timestamp.After(ts.latest.Timestamp) {
		return false
	}
	retained := evt
	ts.latest = &retained

	for sub := range ts.subs {
		sub.Deliver(evt)
	}
	return true
}

// Subscribe registers sub under topic and, when an event is retained,
// delivers it to sub before the topic lock is released. Registration and
// snapshot delivery happen under the same lock as Publish, so a late joiner
// always sees the snapshot first and every later event after it, never a
// newer event followed by the older snapshot.
func (h *Hub) Subscribe(topic string, sub Subscriber) {
	ts := h.topicFor(topic, true)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.subs[sub] = struct{}{}
	if ts.latest != nil {
		sub.Deliver(*ts.latest)
	}
}

// Unsubscribe removes sub from topic. Idempotent; a no-op when absent.
func (h *Hub) Unsubscribe(topic string, sub Subscriber) {
	ts := h.topicFor(topic, false)
	if ts == nil {
		return
	}

	ts.mu.Lock()
	delete(ts.subs, sub)
	empty := len(ts.subs) == 0 && ts.latest == nil
	ts.mu.Unlock()

	if empty {
		h.dropIfEmpty(topic)
	}
}

// CloseTopic forcibly unsubscribes every session from topic and discards the
// retained event, freeing memory. Called when an order reaches a terminal
// state.
func (h *Hub) CloseTopic(topic string) {
	h.mu.Lock()
	ts, ok := h.topics[topic]
	if ok {
		delete(h.topics, topic)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	ts.mu.Lock()
	subs := make([]Subscriber, 0, len(ts.subs))
	for sub := range ts.subs {
		subs = append(subs, sub)
	}
	ts.subs = make(map[Subscriber]struct{})
	ts.latest = nil
	ts.mu.Unlock()

	for _, sub := range subs {
		sub.TopicClosed(topic)
	}

	if h.logger != nil {
		h.logger.Debug(context.Background(), "topic_closed", "Location topic closed", map[string]any{
			"topic":       topic,
			"subscribers": len(subs),
		})
	}
}

// Latest returns a copy of the retained event for topic, if any.
func (h *Hub) Latest(topic string) *Event {
	ts := h.topicFor(topic, false)
	if ts == nil {
		return nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.latest == nil {
		return nil
	}
	snapshot := *ts.latest
	return &snapshot
}

// ----- internal helpers -----

// topicFor fetches the topic state, creating it when create is set. The hub
// lock is held only for the map access, never during fan-out.
func (h *Hub) topicFor(topic string, create bool) *topicState {
	h.mu.RLock()
	ts, ok := h.topics[topic]
	h.mu.RUnlock()
	if ok || !create {
		return ts
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ts, ok = h.topics[topic]; ok {
		return ts
	}
	ts = &topicState{subs: make(map[Subscriber]struct{})}
	h.topics[topic] = ts
	return ts
}

// dropIfEmpty removes a topic whose state holds nothing worth keeping.
func (h *Hub) dropIfEmpty(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.topics[topic]
	if !ok {
		return
	}
	ts.mu.Lock()
	empty := len(ts.subs) == 0 && ts.latest == nil
	ts.mu.Unlock()
	if empty {
		delete(h.topics, topic)
	}
}
