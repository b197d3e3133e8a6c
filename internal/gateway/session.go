package gateway

import (
	"context"
	"sync"
	"time"

	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/hub"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	ctrlTimeout    = 5 * time.Second
)

// Session is one authenticated gateway connection. It implements
// hub.Subscriber: fan-out lands in the bounded outbox and a single writer
// goroutine drains it, so publishers never block on a slow socket.
type Session struct {
	userID string
	role   user.Role

	conn   *websocket.Conn
	hub    *hub.Hub
	logger *logger.Logger
	outbox *sendQueue

	mu     sync.Mutex
	topics map[string]struct{}

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, locationHub *hub.Hub, log *logger.Logger, userID string, role user.Role, queueCapacity int) *Session {
	return &Session{
		userID: userID,
		role:   role,
		conn:   conn,
		hub:    locationHub,
		logger: log,
		outbox: newSendQueue(queueCapacity),
		topics: make(map[string]struct{}),
	}
}

// Deliver queues a location update for the socket. Called by the hub under
// the topic lock, so it must not block.
func (s *Session) Deliver(evt hub.Event) {
	s.outbox.Push(updateFrame(evt))
}

// TopicClosed drops the local subscription record and tells the client the
// stream ended.
func (s *Session) TopicClosed(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
	s.outbox.Push(topicClosedFrame(topic))
}

// subscribe queues the confirmation and registers with the hub. The hub
// delivers the retained snapshot during registration, under the same lock
// publishes take, so the wire order is always subscribed, snapshot, then
// live updates.
func (s *Session) subscribe(topic string) {
	s.mu.Lock()
	_, already := s.topics[topic]
	s.topics[topic] = struct{}{}
	s.mu.Unlock()

	s.outbox.Push(subscribedFrame(topic))
	if already {
		return
	}
	s.hub.Subscribe(topic, s)
}

// unsubscribe is idempotent.
func (s *Session) unsubscribe(topic string) {
	s.mu.Lock()
	_, ok := s.topics[topic]
	delete(s.topics, topic)
	s.mu.Unlock()
	if ok {
		s.hub.Unsubscribe(topic, s)
	}
}

// send queues an out-of-band frame (errors, confirmations).
func (s *Session) send(f outboundFrame) {
	s.outbox.Push(f)
}

// writePump is the sole writer of data frames on the connection. It exits
// when the outbox closes or a write fails, closing the socket either way to
// unblock the read loop.
func (s *Session) writePump(ctx context.Context) {
	defer s.conn.Close()

	for {
		f, ok := s.outbox.Pop()
		if !ok {
			return
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := s.conn.WriteJSON(f); err != nil {
			s.logger.Debug(ctx, "ws_write_failed", "Gateway write failed, dropping session", map[string]any{
				"user_id": s.userID,
				"error":   err.Error(),
			})
			return
		}
	}
}

// pingLoop keeps the connection alive. Control frames may be written
// concurrently with the writer goroutine.
func (s *Session) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			if err != nil {
				// Close socket to unblock reader; goroutine exits.
				_ = s.conn.Close()
				s.logger.Debug(ctx, "ws_ping_failed", "Failed to send ping", map[string]any{
					"user_id": s.userID,
				})
				return
			}
		case <-done:
			return
		}
	}
}

// close tears the session down exactly once: hub subscriptions first so no
// further Deliver calls arrive, then the outbox, then the socket.
func (s *Session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		topics := make([]string, 0, len(s.topics))
		for t := range s.topics {
			topics = append(topics, t)
		}
		s.topics = make(map[string]struct{})
		s.mu.Unlock()

		for _, t := range topics {
			s.hub.Unsubscribe(t, s)
		}
		s.outbox.Close()
		_ = s.conn.Close()

		if dropped := s.outbox.Dropped(); dropped > 0 {
			s.logger.Debug(ctx, "ws_frames_dropped", "Slow consumer lost coalesced frames", map[string]any{
				"user_id": s.userID,
				"dropped": dropped,
			})
		}
	})
}
