package tariff

import (
	"errors"
	"strings"
)

// VehicleType is a tariff record for one category of towed vehicles,
// corresponding to the `vehicle_types` table. Prices are in minor
// currency units. The record is administered elsewhere; the dispatch
// core only reads it.
type VehicleType struct {
	ID            int64
	Name          string
	Description   string
	MaxWeightTons float64
	BasePrice     int64
	PerKmRate     int64
}

var (
	ErrNameRequired     = errors.New("vehicle type name is required")
	ErrNegativeBase     = errors.New("base price cannot be negative")
	ErrNegativePerKm    = errors.New("per-km rate cannot be negative")
	ErrInvalidMaxWeight = errors.New("max weight must be positive")
)

// Validate checks invariants mirroring the table constraints.
func (vt *VehicleType) Validate() error {
	if strings.TrimSpace(vt.Name) == "" {
		return ErrNameRequired
	}
	if vt.MaxWeightTons <= 0 {
		return ErrInvalidMaxWeight
	}
	if vt.BasePrice < 0 {
		return ErrNegativeBase
	}
	if vt.PerKmRate < 0 {
		return ErrNegativePerKm
	}
	return nil
}
