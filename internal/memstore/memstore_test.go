package memstore

import (
	"context"
	"testing"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, priority order.Priority) *order.Order {
	t.Helper()
	o, err := order.NewOrder("client-1", 1,
		geo.Point{Latitude: 55.0, Longitude: 37.0}, "pickup st 1",
		geo.Point{Latitude: 55.2, Longitude: 37.2}, "delivery st 2",
		"", priority, 10)
	require.NoError(t, err)
	return o
}

func newAvailableTruck(id string) *truck.TowTruck {
	return &truck.TowTruck{
		ID:             id,
		LicensePlate:   "A" + id,
		VehicleTypeIDs: []int64{1},
		DriverID:       "driver-" + id,
		Status:         truck.StatusAvailable,
		Location: &geo.Location{
			Point:     geo.Point{Latitude: 55.0, Longitude: 37.0},
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func TestUpdateStatusCAS(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o))

	got, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusSearching, got.Status)
	require.NotNil(t, got.SearchStartedAt)

	// the expected-from no longer matches
	_, err = s.Orders().UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	assert.ErrorIs(t, err, ports.ErrStatusConflict)

	_, err = s.Orders().UpdateStatus(ctx, "missing", order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAssignTruck(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTruck(newAvailableTruck("t1"))

	o := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o))
	_, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	require.NoError(t, err)

	got, err := s.Orders().AssignTruck(ctx, o.ID, "t1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusAssigned, got.Status)
	require.NotNil(t, got.TowTruckID)
	assert.Equal(t, "t1", *got.TowTruckID)
	require.NotNil(t, got.AssignedAt)

	tr, err := s.Trucks().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, truck.StatusBusy, tr.Status)
	assert.False(t, tr.UpdatedAt.IsZero(), "the status flip touches the record")

	// the truck is no longer available for a second order
	o2 := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o2))
	_, err = s.Orders().UpdateStatus(ctx, o2.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	require.NoError(t, err)
	_, err = s.Orders().AssignTruck(ctx, o2.ID, "t1")
	assert.ErrorIs(t, err, ports.ErrTruckUnavailable)

	// assigning to an order that is not SEARCHING conflicts
	s.PutTruck(newAvailableTruck("t2"))
	_, err = s.Orders().AssignTruck(ctx, o.ID, "t2")
	assert.ErrorIs(t, err, ports.ErrStatusConflict)
}

func TestTerminalStatusReleasesTruck(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTruck(newAvailableTruck("t1"))

	o := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o))
	_, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	require.NoError(t, err)
	_, err = s.Orders().AssignTruck(ctx, o.ID, "t1")
	require.NoError(t, err)

	got, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusAssigned, order.StatusCancelled, user.RoleClient, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "no longer needed", *got.CancellationReason)

	tr, err := s.Trucks().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, truck.StatusAvailable, tr.Status)
}

func TestCompletionFreezesFinalPrice(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(t, order.PriorityNormal)
	estimate := int64(1000)
	o.EstimatedPrice = &estimate
	o.Status = order.StatusInProgress
	require.NoError(t, s.Orders().Create(ctx, o))

	got, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusInProgress, order.StatusCompleted, user.RoleDriver, "")
	require.NoError(t, err)
	require.NotNil(t, got.FinalPrice)
	assert.Equal(t, estimate, *got.FinalPrice)
	require.NotNil(t, got.CompletedAt)
}

func TestListSearchingOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()

	older := newOrder(t, order.PriorityNormal)
	older.Status = order.StatusSearching
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Orders().Create(ctx, older))

	newer := newOrder(t, order.PriorityNormal)
	newer.Status = order.StatusSearching
	require.NoError(t, s.Orders().Create(ctx, newer))

	urgent := newOrder(t, order.PriorityUrgent)
	urgent.Status = order.StatusSearching
	require.NoError(t, s.Orders().Create(ctx, urgent))

	done := newOrder(t, order.PriorityUrgent)
	done.Status = order.StatusCompleted
	require.NoError(t, s.Orders().Create(ctx, done))

	out, err := s.Orders().ListSearching(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, urgent.ID, out[0].ID, "priority outranks age")
	assert.Equal(t, older.ID, out[1].ID)
	assert.Equal(t, newer.ID, out[2].ID)

	out, err = s.Orders().ListSearching(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestActiveOrderForTruck(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTruck(newAvailableTruck("t1"))

	_, err := s.Orders().ActiveOrderForTruck(ctx, "t1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	o := newOrder(t, order.PriorityNormal)
	o.Status = order.StatusSearching
	require.NoError(t, s.Orders().Create(ctx, o))
	_, err = s.Orders().AssignTruck(ctx, o.ID, "t1")
	require.NoError(t, err)

	active, err := s.Orders().ActiveOrderForTruck(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, active.ID)
}

func TestUpdateLocationMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTruck(newAvailableTruck("t1"))

	base := time.Now().UTC()
	newer := geo.Point{Latitude: 56.0, Longitude: 38.0}
	require.NoError(t, s.Trucks().UpdateLocation(ctx, "t1", newer, base.Add(time.Minute)))

	// an older report arriving late is silently dropped
	stale := geo.Point{Latitude: 50.0, Longitude: 30.0}
	require.NoError(t, s.Trucks().UpdateLocation(ctx, "t1", stale, base))

	tr, err := s.Trucks().GetByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tr.Location)
	assert.Equal(t, newer, tr.Location.Point)

	assert.ErrorIs(t, s.Trucks().UpdateLocation(ctx, "missing", newer, base), ports.ErrNotFound)

	// out-of-range coordinates never land in the store
	bad := geo.Point{Latitude: 91.0, Longitude: 38.0}
	assert.Error(t, s.Trucks().UpdateLocation(ctx, "t1", bad, base.Add(time.Hour)))
	tr, err = s.Trucks().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, newer, tr.Location.Point)
}

func TestHistoryTrail(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTruck(newAvailableTruck("t1"))

	o := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o))
	_, err := s.Orders().UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusSearching, user.RoleSystem, "")
	require.NoError(t, err)
	_, err = s.Orders().AssignTruck(ctx, o.ID, "t1")
	require.NoError(t, err)
	_, err = s.Orders().UpdateStatus(ctx, o.ID, order.StatusAssigned, order.StatusCancelled, user.RoleClient, "test")
	require.NoError(t, err)

	trail := s.History(o.ID)
	require.Len(t, trail, 4)
	assert.Equal(t, order.StatusCreated, trail[0].ToStatus)
	assert.Equal(t, order.StatusSearching, trail[1].ToStatus)
	assert.Equal(t, order.StatusAssigned, trail[2].ToStatus)
	assert.Equal(t, order.StatusCancelled, trail[3].ToStatus)
	assert.Equal(t, user.RoleClient, trail[3].Actor)
	assert.Equal(t, "test", trail[3].Reason)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := newOrder(t, order.PriorityNormal)
	require.NoError(t, s.Orders().Create(ctx, o))

	first, err := s.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	first.Status = order.StatusCompleted // mutating the copy

	second, err := s.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCreated, second.Status)
}
