package order

import (
	"errors"
	"math"
	"strings"
	"time"

	"tow-dispatch/internal/domain/geo"

	"github.com/google/uuid"
)

// Order is the domain entity corresponding to the `orders` table.
type Order struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	ClientID   string
	TowTruckID *string // nil until assigned

	// Core state
	VehicleTypeID int64
	Status        Status
	Priority      Priority

	// Route (pre-computed distance comes from the caller, the core never routes)
	Pickup          geo.Point
	PickupAddress   string
	Delivery        geo.Point
	DeliveryAddress string
	DistanceKM      float64
	Description     string

	// Pricing (minor currency units)
	EstimatedPrice *int64
	FinalPrice     *int64

	// Lifecycle timestamps
	SearchStartedAt *time.Time
	AssignedAt      *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time

	CancellationReason *string
}

var (
	ErrClientRequired      = errors.New("client id is required")
	ErrVehicleTypeRequired = errors.New("vehicle type id is required")
	ErrAddressRequired     = errors.New("pickup and delivery addresses are required")
	ErrInvalidDistance     = errors.New("distance must be finite and non-negative")
	ErrTruckRequired       = errors.New("tow truck id is required")
	ErrAlreadyAssigned     = errors.New("tow truck already assigned")
)

// NewOrder creates a new order in CREATED state.
func NewOrder(clientID string, vehicleTypeID int64, pickup geo.Point, pickupAddress string, delivery geo.Point, deliveryAddress string, description string, priority Priority, distanceKM float64) (*Order, error) {
	if clientID = strings.TrimSpace(clientID); clientID == "" {
		return nil, ErrClientRequired
	}
	if vehicleTypeID <= 0 {
		return nil, ErrVehicleTypeRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := delivery.Validate(); err != nil {
		return nil, err
	}
	pickupAddress = strings.TrimSpace(pickupAddress)
	deliveryAddress = strings.TrimSpace(deliveryAddress)
	if pickupAddress == "" || deliveryAddress == "" {
		return nil, ErrAddressRequired
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if distanceKM < 0 || math.IsNaN(distanceKM) || math.IsInf(distanceKM, 0) {
		return nil, ErrInvalidDistance
	}

	now := time.Now().UTC()
	return &Order{
		ID:              uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
		ClientID:        clientID,
		VehicleTypeID:   vehicleTypeID,
		Status:          StatusCreated,
		Priority:        priority,
		Pickup:          pickup,
		PickupAddress:   pickupAddress,
		Delivery:        delivery,
		DeliveryAddress: deliveryAddress,
		DistanceKM:      distanceKM,
		Description:     strings.TrimSpace(description),
	}, nil
}

// BeginSearch transitions CREATED -> SEARCHING.
func (o *Order) BeginSearch() error {
	if !o.Status.CanTransitionTo(StatusSearching) {
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	o.SearchStartedAt = &now
	o.setStatus(StatusSearching)
	return nil
}

// Assign sets the tow truck and moves SEARCHING -> ASSIGNED.
func (o *Order) Assign(truckID string) error {
	if truckID = strings.TrimSpace(truckID); truckID == "" {
		return ErrTruckRequired
	}
	if o.TowTruckID != nil && *o.TowTruckID != "" {
		return ErrAlreadyAssigned
	}
	if !o.Status.CanTransitionTo(StatusAssigned) || o.Status != StatusSearching {
		return ErrInvalidStatus
	}

	now := time.Now().UTC()
	o.TowTruckID = &truckID
	o.AssignedAt = &now
	o.setStatus(StatusAssigned)
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED and freezes the final price.
func (o *Order) Complete(finalPrice int64) error {
	if o.Status != StatusInProgress {
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	o.CompletedAt = &now
	o.FinalPrice = &finalPrice
	o.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions to CANCELLED when the current state allows it.
func (o *Order) Cancel(reason string) error {
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatus
	}
	now := time.Now().UTC()
	o.CancelledAt = &now
	if r := strings.TrimSpace(reason); r != "" {
		o.CancellationReason = &r
	}
	o.setStatus(StatusCancelled)
	return nil
}

// SearchDeadlineExceeded reports whether the order has been searching for
// longer than maxWait.
func (o *Order) SearchDeadlineExceeded(now time.Time, maxWait time.Duration) bool {
	if o.Status != StatusSearching || o.SearchStartedAt == nil {
		return false
	}
	return now.Sub(*o.SearchStartedAt) >= maxWait
}

// ----- internal helpers -----

func (o *Order) setStatus(status Status) {
	o.Status = status
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
