package ports

import (
	"context"
	"time"

	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/user"
)

// ----- DTOs for the order service -----

// CreateOrderInput is the validated input required to create an order.
// DistanceKM is the pre-computed route length supplied by the caller.
type CreateOrderInput struct {
	ClientID          string
	VehicleTypeID     int64
	PickupLatitude    float64
	PickupLongitude   float64
	PickupAddress     string
	DeliveryLatitude  float64
	DeliveryLongitude float64
	DeliveryAddress   string
	Description       string
	Priority          string
	DistanceKM        float64
}

// AdvanceInput is a request to move an order to another status.
type AdvanceInput struct {
	OrderID         string
	RequestedStatus string
	ActorID         string
	ActorRole       user.Role
	Reason          string
}

// ----- Order service interface -----

// OrderService exposes the order lifecycle boundary consumed by the CRUD
// layer and the gateway.
type OrderService interface {
	Create(ctx context.Context, in CreateOrderInput) (*order.Order, error)
	Advance(ctx context.Context, in AdvanceInput) (*order.Order, error)
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
}

// ----- Status event publishing -----

// OrderStatusEvent is emitted on every successful transition.
type OrderStatusEvent struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	TruckID   string    `json:"truck_id,omitempty"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusPublisher fans order status events out to interested services.
type StatusPublisher interface {
	PublishOrderStatus(ctx context.Context, evt OrderStatusEvent) error
}
