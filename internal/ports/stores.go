package ports

import (
	"context"
	"errors"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/tariff"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/domain/user"
)

// Store-level sentinels. The dispatch core maps them onto the error
// taxonomy in internal/pkg/errs; stores stay ignorant of actor context.
var (
	ErrNotFound         = errors.New("not found")
	ErrStatusConflict   = errors.New("order status changed concurrently")
	ErrTruckUnavailable = errors.New("tow truck is not available")
)

// UnitOfWork manages transactions across multiple store operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStore is the durable record of orders. The core only requires the
// conditional-write primitives below; any backing store providing them is
// acceptable.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error
	GetByID(ctx context.Context, id string) (*order.Order, error)

	// ListSearching returns orders in SEARCHING status ordered by priority
	// rank (descending) and then creation time (ascending).
	ListSearching(ctx context.Context, limit int) ([]*order.Order, error)

	// ActiveOrderForTruck returns the single non-terminal order referencing
	// the truck, or ErrNotFound when the truck is idle.
	ActiveOrderForTruck(ctx context.Context, truckID string) (*order.Order, error)

	// UpdateStatus is an atomic compare-and-set: it writes `to` only when
	// the order's current status equals `from`, returning ErrStatusConflict
	// otherwise. When `to` is terminal the assigned truck (if any) is
	// released back to AVAILABLE in the same transaction. A status history
	// record is appended alongside. Returns the updated order.
	UpdateStatus(ctx context.Context, orderID string, from, to order.Status, actor user.Role, reason string) (*order.Order, error)

	// AssignTruck atomically moves the order SEARCHING->ASSIGNED, stores the
	// truck reference and flips the truck AVAILABLE->BUSY, all in one
	// transaction. Returns ErrTruckUnavailable when the truck lost its
	// availability to a concurrent assignment and ErrStatusConflict when the
	// order is no longer SEARCHING.
	AssignTruck(ctx context.Context, orderID, truckID string) (*order.Order, error)
}

// TruckStore reads fleet state. Availability mutation happens only through
// OrderStore.AssignTruck / UpdateStatus so it stays coupled to the order
// transaction.
type TruckStore interface {
	GetByID(ctx context.Context, id string) (*truck.TowTruck, error)
	GetByDriver(ctx context.Context, driverID string) (*truck.TowTruck, error)

	// ListAvailable returns AVAILABLE trucks whose capability class covers
	// the vehicle type and that have reported a location.
	ListAvailable(ctx context.Context, vehicleTypeID int64) ([]*truck.TowTruck, error)

	UpdateLocation(ctx context.Context, truckID string, point geo.Point, at time.Time) error
}

// TariffStore reads vehicle-type rates. Administered by a collaborating
// service; read-only here.
type TariffStore interface {
	GetVehicleType(ctx context.Context, id int64) (*tariff.VehicleType, error)
}
