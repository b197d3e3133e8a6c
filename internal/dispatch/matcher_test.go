package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"tow-dispatch/internal/dispatch"
	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/memstore"
	"tow-dispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAssigner captures attempts and answers from a script keyed by
// truck id. Unknown trucks succeed.
type recordingAssigner struct {
	attempts []string
	fail     map[string]error
}

func (a *recordingAssigner) Assign(_ context.Context, _, truckID string) error {
	a.attempts = append(a.attempts, truckID)
	return a.fail[truckID]
}

func seedTruck(store *memstore.Store, id string, lat, lon, rating float64) {
	store.PutTruck(&truck.TowTruck{
		ID:             id,
		LicensePlate:   "A" + id,
		VehicleTypeIDs: []int64{1},
		DriverID:       "driver-" + id,
		DriverRating:   rating,
		Status:         truck.StatusAvailable,
		Location: &geo.Location{
			Point: geo.Point{Latitude: lat, Longitude: lon},
		},
	})
}

func searchingOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.NewOrder("client-1", 1,
		geo.Point{Latitude: 55.0, Longitude: 37.0}, "pickup st 1",
		geo.Point{Latitude: 55.1, Longitude: 37.1}, "delivery st 2",
		"", order.PriorityNormal, 12.5)
	require.NoError(t, err)
	require.NoError(t, o.BeginSearch())
	return o
}

func TestMatchAndAssignPicksNearest(t *testing.T) {
	store := memstore.New()
	seedTruck(store, "far", 56.0, 37.0, 5.0)  // ~111 km away
	seedTruck(store, "near", 55.1, 37.0, 3.0) // ~11 km away

	m := dispatch.NewMatcher(logger.New("test"), store.Trucks(), 3)
	assigner := &recordingAssigner{}

	truckID, err := m.MatchAndAssign(context.Background(), searchingOrder(t), assigner)
	require.NoError(t, err)
	assert.Equal(t, "near", truckID)
	assert.Equal(t, []string{"near"}, assigner.attempts)
}

func TestMatchAndAssignTieBreaks(t *testing.T) {
	store := memstore.New()
	// same spot, different ratings
	seedTruck(store, "b-good", 55.1, 37.0, 4.9)
	seedTruck(store, "a-poor", 55.1, 37.0, 3.1)

	m := dispatch.NewMatcher(logger.New("test"), store.Trucks(), 3)
	assigner := &recordingAssigner{}

	truckID, err := m.MatchAndAssign(context.Background(), searchingOrder(t), assigner)
	require.NoError(t, err)
	assert.Equal(t, "b-good", truckID, "higher rating wins at equal distance")

	// equal rating too: lowest id wins so the ordering is reproducible
	store = memstore.New()
	seedTruck(store, "t2", 55.1, 37.0, 4.0)
	seedTruck(store, "t1", 55.1, 37.0, 4.0)
	m = dispatch.NewMatcher(logger.New("test"), store.Trucks(), 3)
	truckID, err = m.MatchAndAssign(context.Background(), searchingOrder(t), &recordingAssigner{})
	require.NoError(t, err)
	assert.Equal(t, "t1", truckID)
}

func TestMatchAndAssignSkipsConflicts(t *testing.T) {
	store := memstore.New()
	seedTruck(store, "t1", 55.01, 37.0, 5.0)
	seedTruck(store, "t2", 55.02, 37.0, 5.0)
	seedTruck(store, "t3", 55.03, 37.0, 5.0)

	m := dispatch.NewMatcher(logger.New("test"), store.Trucks(), 3)
	assigner := &recordingAssigner{fail: map[string]error{
		"t1": errs.NewAssignmentConflictError("o", "t1"),
		"t2": errs.NewAssignmentConflictError("o", "t2"),
	}}

	truckID, err := m.MatchAndAssign(context.Background(), searchingOrder(t), assigner)
	require.NoError(t, err)
	assert.Equal(t, "t3", truckID)
	assert.Equal(t, []string{"t1", "t2", "t3"}, assigner.attempts)
}

func TestMatchAndAssignExhaustsAttempts(t *testing.T) {
	store := memstore.New()
	seedTruck(store, "t1", 55.01, 37.0, 5.0)
	seedTruck(store, "t2", 55.02, 37.0, 5.0)
	seedTruck(store, "t3", 55.03, 37.0, 5.0)

	m := dispatch.NewMatcher(logger.New("test"), store.Trucks(), 2)
	assigner := &recordingAssigner{fail: map[string]error{
		"t1": errs.NewAssignmentConflictError("o", "t1"),
		"t2": errs.NewAssignmentConflictError("o", "t2"),
	}}

	_, err := m.MatchAndAssign(context.Background(), searchingOrder(t), assigner)
	assert.ErrorIs(t, err, dispatch.ErrNoCandidate)
	assert.Equal(t, []string{"t1", "t2"}, assigner.attempts, "t3 is beyond the attempt budget")
}

func TestMatchAndAssignNoCandidates(t *testing.T) {
	m := dispatch.NewMatcher(logger.New("test"), memstore.New().Trucks(), 3)
	_, err := m.MatchAndAssign(context.Background(), searchingOrder(t), &recordingAssigner{})
	assert.ErrorIs(t, err, dispatch.ErrNoCandidate)
}

func TestMatchAndAssignStopsOnRealError(t *testing.T) {
	store := memstore.New()
	seedTruck(store, "t1", 55.01, 37.0, 5.0)
	seedTruck(store, "t2", 55.02, 37.0, 5.0)

	boom := errors.New("store unavailable")
	m := dispatch.NewMatcher(logger.New("test"), store.Trucks(), 3)
	assigner := &recordingAssigner{fail: map[string]error{"t1": boom}}

	_, err := m.MatchAndAssign(context.Background(), searchingOrder(t), assigner)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"t1"}, assigner.attempts, "non-conflict errors are not retried")
}
