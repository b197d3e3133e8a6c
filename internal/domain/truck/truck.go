package truck

import (
	"errors"
	"slices"
	"strings"
	"time"

	"tow-dispatch/internal/domain/geo"
)

// TowTruck is the domain entity corresponding to the `tow_trucks` table.
// The fleet subsystem owns the record; the dispatch core reads capability
// and location and flips availability transactionally with assignment.
type TowTruck struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Registration
	LicensePlate string
	Model        string
	CapacityTons float64

	// Capability: ids of the vehicle (tariff) types this truck can carry.
	VehicleTypeIDs []int64

	// Operational state
	DriverID     string
	DriverRating float64
	Status       Status
	Location     *geo.Location // nil until the first location report
}

var (
	ErrPlateRequired  = errors.New("license plate is required")
	ErrDriverRequired = errors.New("driver id is required")
)

// NewTowTruck constructs a truck entity with sane defaults.
func NewTowTruck(id, licensePlate, model string, capacityTons float64, vehicleTypeIDs []int64, driverID string) (*TowTruck, error) {
	if licensePlate = strings.TrimSpace(licensePlate); licensePlate == "" {
		return nil, ErrPlateRequired
	}
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}

	now := time.Now().UTC()
	return &TowTruck{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		LicensePlate:   licensePlate,
		Model:          strings.TrimSpace(model),
		CapacityTons:   capacityTons,
		VehicleTypeIDs: slices.Clone(vehicleTypeIDs),
		DriverID:       driverID,
		DriverRating:   5.0,
		Status:         StatusOffline,
	}, nil
}

// CanCarry reports whether the truck's capability class covers the vehicle type.
func (t *TowTruck) CanCarry(vehicleTypeID int64) bool {
	return slices.Contains(t.VehicleTypeIDs, vehicleTypeID)
}

// ReportLocation records the latest known position of the truck.
func (t *TowTruck) ReportLocation(point geo.Point, at time.Time) error {
	if err := point.Validate(); err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.Location = &geo.Location{Point: point, UpdatedAt: at}
	t.touch()
	return nil
}

// MarkBusy flips AVAILABLE -> BUSY (assignment).
func (t *TowTruck) MarkBusy() error {
	if t.Status != StatusAvailable {
		return ErrInvalidStatus
	}
	t.setStatus(StatusBusy)
	return nil
}

// Release flips BUSY -> AVAILABLE (order reached a terminal state).
func (t *TowTruck) Release() error {
	if t.Status != StatusBusy {
		return ErrInvalidStatus
	}
	t.setStatus(StatusAvailable)
	return nil
}

// ----- internal helpers -----

func (t *TowTruck) setStatus(status Status) {
	t.Status = status
	t.touch()
}

func (t *TowTruck) touch() {
	t.UpdatedAt = time.Now().UTC()
}
