package dispatch

import (
	"context"
	"errors"
	"sort"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"
)

// ErrNoCandidate means the current search cycle found no assignable truck.
// Not terminal: the scheduler retries on the next sweep until the order's
// wait ceiling expires.
var ErrNoCandidate = errors.New("no candidate truck this cycle")

// Assigner commits a candidate truck to an order. The orders service backs
// it with the store's compare-and-set so two matchers can never both win.
type Assigner interface {
	Assign(ctx context.Context, orderID, truckID string) error
}

// Matcher selects a tow truck for a searching order.
type Matcher struct {
	logger      *logger.Logger
	trucks      ports.TruckStore
	maxAttempts int
}

// NewMatcher creates a matcher with a bounded number of assignment attempts
// per search cycle.
func NewMatcher(log *logger.Logger, trucks ports.TruckStore, maxAttempts int) *Matcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Matcher{logger: log, trucks: trucks, maxAttempts: maxAttempts}
}

// MatchAndAssign ranks eligible trucks and tries to assign them in order,
// skipping candidates lost to concurrent assignments. Returns the winning
// truck id, ErrNoCandidate when the cycle is exhausted, or the first
// non-conflict error.
func (m *Matcher) MatchAndAssign(ctx context.Context, o *order.Order, assigner Assigner) (string, error) {
	available, err := m.trucks.ListAvailable(ctx, o.VehicleTypeID)
	if err != nil {
		return "", err
	}

	candidates := rank(o.Pickup, eligible(available, o.VehicleTypeID))
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}

	attempts := min(len(candidates), m.maxAttempts)
	for i := 0; i < attempts; i++ {
		candidate := candidates[i]
		err := assigner.Assign(ctx, o.ID, candidate.ID)
		if err == nil {
			m.logger.Info(ctx, "truck_matched", "Tow truck assigned to order", map[string]any{
				"order_id":    o.ID,
				"truck_id":    candidate.ID,
				"distance_km": geo.HaversineKM(candidate.Location.Point, o.Pickup),
				"attempt":     i + 1,
			})
			return candidate.ID, nil
		}
		if errors.Is(err, errs.ErrAssignmentConflict) {
			// lost the race for this truck, fall through to the next one
			m.logger.Debug(ctx, "truck_conflict", "Candidate truck taken concurrently", map[string]any{
				"order_id": o.ID,
				"truck_id": candidate.ID,
				"attempt":  i + 1,
			})
			continue
		}
		return "", err
	}

	return "", ErrNoCandidate
}

// eligible filters trucks that can actually serve the order right now.
func eligible(trucks []*truck.TowTruck, vehicleTypeID int64) []*truck.TowTruck {
	out := make([]*truck.TowTruck, 0, len(trucks))
	for _, t := range trucks {
		if !t.Status.Serviceable() || !t.CanCarry(vehicleTypeID) || t.Location == nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// rank orders candidates by great-circle distance to the pickup point
// (ascending), tie-broken by higher driver rating and then by truck id so
// the ordering is deterministic and reproducible.
func rank(pickup geo.Point, candidates []*truck.TowTruck) []*truck.TowTruck {
	ranked := make([]*truck.TowTruck, len(candidates))
	copy(ranked, candidates)

	sort.Slice(ranked, func(i, j int) bool {
		di := geo.HaversineKM(ranked[i].Location.Point, pickup)
		dj := geo.HaversineKM(ranked[j].Location.Point, pickup)
		if di != dj {
			return di < dj
		}
		if ranked[i].DriverRating != ranked[j].DriverRating {
			return ranked[i].DriverRating > ranked[j].DriverRating
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
