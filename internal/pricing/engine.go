package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"
)

// Breakdown itemizes how a quote was computed. All amounts are in minor
// currency units.
type Breakdown struct {
	BasePrice         int64   `json:"base_price"`
	DistanceComponent int64   `json:"distance_component"`
	Multiplier        float64 `json:"multiplier"`
}

// Quote is a stateless, derived pricing result. Never persisted here.
type Quote struct {
	VehicleTypeID int64     `json:"vehicle_type_id"`
	DistanceKM    float64   `json:"distance_km"`
	Price         int64     `json:"price"`
	Breakdown     Breakdown `json:"breakdown"`
}

// Engine computes quotes from tariff rates. Pure computation: the only
// collaborator is the read-only tariff store.
type Engine struct {
	tariffs   ports.TariffStore
	surcharge SurchargeProvider
}

// NewEngine creates a pricing engine. A nil surcharge provider means no
// multiplier is ever applied.
func NewEngine(tariffs ports.TariffStore, surcharge SurchargeProvider) *Engine {
	if surcharge == nil {
		surcharge = None{}
	}
	return &Engine{tariffs: tariffs, surcharge: surcharge}
}

// Quote computes base + perKm*distance for the vehicle type, rounded half-up
// to the minor unit. Zero distance yields the base price only.
func (e *Engine) Quote(ctx context.Context, vehicleTypeID int64, distanceKM float64) (*Quote, error) {
	return e.QuoteAt(ctx, vehicleTypeID, distanceKM, nil)
}

// QuoteAt is Quote with a pickup point for surcharge resolution.
func (e *Engine) QuoteAt(ctx context.Context, vehicleTypeID int64, distanceKM float64, at *geo.Point) (*Quote, error) {
	if vehicleTypeID <= 0 {
		return nil, errs.NewValidationError("vehicle_type_id")
	}
	if distanceKM < 0 || math.IsNaN(distanceKM) || math.IsInf(distanceKM, 0) {
		return nil, errs.NewValidationErrorWithCause("distance_km",
			fmt.Errorf("%v is not a finite non-negative distance", distanceKM))
	}

	vt, err := e.tariffs.GetVehicleType(ctx, vehicleTypeID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, errs.NewValidationErrorWithCause("vehicle_type_id",
				fmt.Errorf("unknown vehicle type %d", vehicleTypeID))
		}
		return nil, err
	}

	multiplier := 1.0
	if at != nil {
		multiplier = e.surcharge.MultiplierAt(ctx, *at)
		if multiplier <= 0 || math.IsNaN(multiplier) {
			multiplier = 1.0
		}
	}

	distanceComponent := float64(vt.PerKmRate) * distanceKM
	total := (float64(vt.BasePrice) + distanceComponent) * multiplier

	return &Quote{
		VehicleTypeID: vehicleTypeID,
		DistanceKM:    distanceKM,
		Price:         roundHalfUp(total),
		Breakdown: Breakdown{
			BasePrice:         vt.BasePrice,
			DistanceComponent: roundHalfUp(distanceComponent),
			Multiplier:        multiplier,
		},
	}, nil
}

// roundHalfUp rounds to the nearest minor unit, halves away from zero.
// Quoted amounts are never negative, so the simple floor form is enough.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
