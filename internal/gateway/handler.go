package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/general/jwt"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/hub"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Gateway upgrades authenticated clients to WebSocket sessions and routes
// their frames: subscriptions into the location hub, driver location reports
// into the fleet store and back out through the hub.
type Gateway struct {
	logger        *logger.Logger
	jwtMgr        *jwt.Manager
	hub           *hub.Hub
	orders        ports.OrderStore
	trucks        ports.TruckStore
	queueCapacity int
}

// NewGateway creates the WS endpoint handler. queueCapacity bounds each
// session's outbound buffer.
func NewGateway(log *logger.Logger, jwtMgr *jwt.Manager, locationHub *hub.Hub, orders ports.OrderStore, trucks ports.TruckStore, queueCapacity int) *Gateway {
	return &Gateway{
		logger:        log,
		jwtMgr:        jwtMgr,
		hub:           locationHub,
		orders:        orders,
		trucks:        trucks,
		queueCapacity: queueCapacity,
	}
}

// Connect authenticates the request, upgrades it and runs the session read
// loop until the peer goes away.
func (g *Gateway) Connect(w http.ResponseWriter, r *http.Request) {
	raw, err := jwt.FromAuthorization(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	_, claims, err := g.jwtMgr.ParseAndValidate(raw)
	if err != nil {
		g.logger.Error(r.Context(), "ws_auth_failed", "Invalid gateway token", err, nil)
		http.Error(w, "authentication failed: invalid token", http.StatusUnauthorized)
		return
	}
	if err := jwt.RoleAllowed(claims, user.RoleClient, user.RoleDriver, user.RoleOperator); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}

	ctx := g.logger.WithRequestID(context.Background(), claims.Subject)
	session := newSession(conn, g.hub, g.logger, claims.Subject, claims.Role, g.queueCapacity)
	defer session.close(ctx)

	done := make(chan struct{})
	defer close(done)
	go session.writePump(ctx)
	go session.pingLoop(ctx, done)

	g.logger.Info(ctx, "ws_connected", "Gateway session connected", map[string]any{
		"user_id": claims.Subject,
		"role":    claims.Role.String(),
	})

	conn.SetReadLimit(1 << 20) // 1 MiB
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Error(ctx, "ws_unexpected_close", "Gateway session closed unexpectedly", err, map[string]any{
					"user_id": claims.Subject,
				})
			} else {
				g.logger.Info(ctx, "ws_connection_closed", "Gateway session closed", map[string]any{
					"user_id": claims.Subject,
				})
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			session.send(errorFrame("bad json"))
			continue
		}

		switch frame.Type {
		case frameSubscribe:
			if err := g.authorizeSubscribe(ctx, claims, frame.Topic); err != nil {
				session.send(errorFrame(err.Error()))
				continue
			}
			session.subscribe(frame.Topic)

		case frameUnsubscribe:
			session.unsubscribe(frame.Topic)

		case frameLocation:
			if claims.Role != user.RoleDriver {
				session.send(errorFrame("only drivers report locations"))
				continue
			}
			if err := g.ingestLocation(ctx, claims.Subject, frame); err != nil {
				session.send(errorFrame(err.Error()))
			}

		default:
			session.send(errorFrame("unknown message type"))
		}
	}
}

// authorizeSubscribe enforces topic visibility: operators see everything, a
// client sees its own orders, a driver sees its own truck and its assigned
// orders.
func (g *Gateway) authorizeSubscribe(ctx context.Context, claims *jwt.Claims, topic string) error {
	kind, id, err := parseTopic(topic)
	if err != nil {
		return err
	}
	if claims.Role == user.RoleOperator {
		return nil
	}

	switch kind {
	case "order":
		o, err := g.orders.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("unknown order %s", id)
			}
			return errors.New("internal error")
		}
		if claims.Role == user.RoleClient {
			if o.ClientID != claims.Subject {
				return errors.New("order does not belong to you")
			}
			return nil
		}
		// driver: must be the assigned one
		if o.TowTruckID == nil {
			return errors.New("order has no assigned truck")
		}
		t, err := g.trucks.GetByID(ctx, *o.TowTruckID)
		if err != nil {
			return errors.New("internal error")
		}
		if t.DriverID != claims.Subject {
			return errors.New("order is not assigned to you")
		}
		return nil

	case "truck":
		if claims.Role != user.RoleDriver {
			return errors.New("truck streams are driver and operator only")
		}
		t, err := g.trucks.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("unknown truck %s", id)
			}
			return errors.New("internal error")
		}
		if t.DriverID != claims.Subject {
			return errors.New("truck does not belong to you")
		}
		return nil
	}
	return errors.New("unknown topic kind")
}

// ingestLocation unpacks a driver location frame and feeds the shared ingest
// path.
func (g *Gateway) ingestLocation(ctx context.Context, driverID string, frame inboundFrame) error {
	point, err := geo.NewPoint(frame.Latitude, frame.Longitude)
	if err != nil {
		return err
	}
	at := time.Now().UTC()
	if frame.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, frame.Timestamp)
		if err != nil {
			return errors.New("timestamp must be RFC3339")
		}
		at = parsed.UTC()
	}
	return g.IngestDriverLocation(ctx, driverID, point, at)
}

// IngestDriverLocation handles a driver location report: persist on the
// truck, then fan out on the truck topic and, when the truck is on a job, on
// that order's topic too. Shared by the WS frame path and the HTTP fallback
// endpoint.
func (g *Gateway) IngestDriverLocation(ctx context.Context, driverID string, point geo.Point, at time.Time) error {
	t, err := g.trucks.GetByDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return errs.NewNotFoundError("driver_id", driverID)
		}
		return errors.New("internal error")
	}

	if err := g.trucks.UpdateLocation(ctx, t.ID, point, at); err != nil {
		g.logger.Error(ctx, "location_store_failed", "Failed to persist truck location", err, map[string]any{
			"truck_id": t.ID,
		})
		return errors.New("internal error")
	}

	evt := hub.Event{
		TruckID:   t.ID,
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
		Timestamp: at,
	}
	g.hub.Publish(hub.TruckTopic(t.ID), evt)

	o, err := g.orders.ActiveOrderForTruck(ctx, t.ID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil // idle truck, no order stream to feed
		}
		return errors.New("internal error")
	}
	evt.OrderID = o.ID
	g.hub.Publish(hub.OrderTopic(o.ID), evt)
	return nil
}

// parseTopic splits "order:<id>" / "truck:<id>".
func parseTopic(topic string) (kind, id string, err error) {
	parts := strings.SplitN(topic, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", errors.New("topic must be order:<id> or truck:<id>")
	}
	if parts[0] != "order" && parts[0] != "truck" {
		return "", "", errors.New("topic must be order:<id> or truck:<id>")
	}
	return parts[0], parts[1], nil
}
