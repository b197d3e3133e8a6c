package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"tow-dispatch/internal/dispatch"
	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/tariff"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/hub"
	"tow-dispatch/internal/memstore"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"
	"tow-dispatch/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires a full service over the in-memory store.
type fixture struct {
	store *memstore.Store
	hub   *hub.Hub
	pub   *capturePublisher
	svc   *Service
}

// capturePublisher records every emitted status event.
type capturePublisher struct {
	mu     sync.Mutex
	events []struct {
		OrderID   string
		NewStatus string
	}
}

func (p *capturePublisher) PublishOrderStatus(_ context.Context, evt ports.OrderStatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, struct {
		OrderID   string
		NewStatus string
	}{evt.OrderID, evt.NewStatus})
	return nil
}

func (p *capturePublisher) statuses(orderID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.OrderID == orderID {
			out = append(out, e.NewStatus)
		}
	}
	return out
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	log := logger.New("test")
	store := memstore.New()
	store.PutVehicleType(&tariff.VehicleType{
		ID: 1, Name: "sedan", MaxWeightTons: 2.5, BasePrice: 500, PerKmRate: 50,
	})

	locationHub := hub.New(log)
	engine := pricing.NewEngine(store.Tariffs(), nil)
	matcher := dispatch.NewMatcher(log, store.Trucks(), 3)
	pub := &capturePublisher{}

	svc := NewService(log, store.Orders(), store.Trucks(), engine, matcher, locationHub, pub, cfg)
	return &fixture{store: store, hub: locationHub, pub: pub, svc: svc}
}

func (f *fixture) seedAvailableTruck(id, driverID string) {
	f.store.PutTruck(&truck.TowTruck{
		ID:             id,
		LicensePlate:   "A" + id,
		VehicleTypeIDs: []int64{1},
		DriverID:       driverID,
		DriverRating:   4.8,
		Status:         truck.StatusAvailable,
		Location: &geo.Location{
			Point:     geo.Point{Latitude: 55.05, Longitude: 37.0},
			UpdatedAt: time.Now().UTC(),
		},
	})
}

func createInput() ports.CreateOrderInput {
	return ports.CreateOrderInput{
		ClientID:          "client-1",
		VehicleTypeID:     1,
		PickupLatitude:    55.0,
		PickupLongitude:   37.0,
		PickupAddress:     "pickup st 1",
		DeliveryLatitude:  55.2,
		DeliveryLongitude: 37.2,
		DeliveryAddress:   "delivery st 2",
		Priority:          "NORMAL",
		DistanceKM:        10.0,
	}
}

func TestCreateAssignsWhenTruckAvailable(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedAvailableTruck("truck-1", "driver-1")

	o, err := f.svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	assert.Equal(t, order.StatusAssigned, o.Status)
	require.NotNil(t, o.TowTruckID)
	assert.Equal(t, "truck-1", *o.TowTruckID)
	require.NotNil(t, o.EstimatedPrice)
	assert.Equal(t, int64(1000), *o.EstimatedPrice) // 500 + 50*10

	tr, err := f.store.Trucks().GetByID(context.Background(), "truck-1")
	require.NoError(t, err)
	assert.Equal(t, truck.StatusBusy, tr.Status)

	assert.Equal(t, []string{"CREATED", "SEARCHING", "ASSIGNED"}, f.pub.statuses(o.ID))
}

func TestCreateStaysSearchingWithoutTrucks(t *testing.T) {
	f := newFixture(t, Config{})

	o, err := f.svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	assert.Equal(t, order.StatusSearching, o.Status)
	assert.Nil(t, o.TowTruckID)
	require.NotNil(t, o.SearchStartedAt)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	in := createInput()
	in.Priority = "ASAP"
	_, err := f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, errs.ErrValidation)

	in = createInput()
	in.PickupLatitude = 91
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, errs.ErrValidation)

	in = createInput()
	in.VehicleTypeID = 99 // no tariff row
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, errs.ErrValidation)

	in = createInput()
	in.DistanceKM = -3
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestDriverRunsTheTow(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedAvailableTruck("truck-1", "driver-1")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, order.StatusAssigned, o.Status)

	o, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "IN_PROGRESS",
		ActorID: "driver-1", ActorRole: user.RoleDriver,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, o.Status)

	o, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "COMPLETED",
		ActorID: "driver-1", ActorRole: user.RoleDriver,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	require.NotNil(t, o.FinalPrice)
	assert.Equal(t, *o.EstimatedPrice, *o.FinalPrice, "final price frozen from the estimate")
	require.NotNil(t, o.CompletedAt)

	// completion releases the truck
	tr, err := f.store.Trucks().GetByID(ctx, "truck-1")
	require.NoError(t, err)
	assert.Equal(t, truck.StatusAvailable, tr.Status)
}

func TestAdvanceLegality(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedAvailableTruck("truck-1", "driver-1")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)

	// a client may not start the tow
	_, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "IN_PROGRESS",
		ActorID: "client-1", ActorRole: user.RoleClient,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	// a stranger driver is rejected on identity, not on the role table
	_, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "IN_PROGRESS",
		ActorID: "driver-other", ActorRole: user.RoleDriver,
	})
	assert.ErrorIs(t, err, errs.ErrAuthentication)

	// SYSTEM never arrives through the external boundary
	_, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "CANCELLED",
		ActorID: "x", ActorRole: user.RoleSystem,
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// in progress, nobody may cancel
	_, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "IN_PROGRESS",
		ActorID: "driver-1", ActorRole: user.RoleDriver,
	})
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "CANCELLED",
		ActorID: "client-1", ActorRole: user.RoleClient, Reason: "changed my mind",
	})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestClientCancelReleasesTruckAndClosesTopic(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedAvailableTruck("truck-1", "driver-1")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, order.StatusAssigned, o.Status)

	sub := &closeRecorder{}
	f.hub.Subscribe(hub.OrderTopic(o.ID), sub)

	o, err = f.svc.Advance(ctx, ports.AdvanceInput{
		OrderID: o.ID, RequestedStatus: "CANCELLED",
		ActorID: "client-1", ActorRole: user.RoleClient, Reason: "found the keys",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	require.NotNil(t, o.CancellationReason)
	assert.Equal(t, "found the keys", *o.CancellationReason)

	tr, err := f.store.Trucks().GetByID(ctx, "truck-1")
	require.NoError(t, err)
	assert.Equal(t, truck.StatusAvailable, tr.Status)

	assert.Equal(t, []string{hub.OrderTopic(o.ID)}, sub.topics())
}

func TestAdvanceUnknownOrder(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Advance(context.Background(), ports.AdvanceInput{
		OrderID: "missing", RequestedStatus: "CANCELLED",
		ActorID: "client-1", ActorRole: user.RoleClient,
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedAvailableTruck("truck-1", "driver-1")
	ctx := context.Background()

	// two searching orders racing for the same truck; seed them directly so
	// Create's immediate matching cannot pre-empt the race
	orders := make([]*order.Order, 2)
	for i := range orders {
		o, err := order.NewOrder("client-1", 1,
			geo.Point{Latitude: 55.0, Longitude: 37.0}, "pickup st 1",
			geo.Point{Latitude: 55.2, Longitude: 37.2}, "delivery st 2",
			"", order.PriorityNormal, 10)
		require.NoError(t, err)
		require.NoError(t, o.BeginSearch())
		require.NoError(t, f.store.Orders().Create(ctx, o))
		orders[i] = o
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, o := range orders {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			results <- f.svc.Assign(ctx, orderID, "truck-1")
		}(o.ID)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, errs.ErrAssignmentConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestSweepCancelsExpiredSearch(t *testing.T) {
	f := newFixture(t, Config{MaxSearchWait: time.Nanosecond})
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, order.StatusSearching, o.Status)

	f.svc.Sweep(ctx)

	got, err := f.svc.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, ReasonNoCapacity, *got.CancellationReason)
}

func TestSweepAssignsLateArrivingTruck(t *testing.T) {
	f := newFixture(t, Config{MaxSearchWait: time.Hour})
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, order.StatusSearching, o.Status)

	// a truck frees up between sweeps
	f.seedAvailableTruck("truck-1", "driver-1")
	f.svc.Sweep(ctx)

	got, err := f.svc.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAssigned, got.Status)
	require.NotNil(t, got.TowTruckID)
	assert.Equal(t, "truck-1", *got.TowTruckID)
}

func TestSearchJobSweeps(t *testing.T) {
	f := newFixture(t, Config{SweepInterval: 50 * time.Millisecond, MaxSearchWait: time.Nanosecond})
	ctx := context.Background()

	o, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Equal(t, order.StatusSearching, o.Status)

	job := NewSearchJob(f.svc, logger.New("test"))
	require.NoError(t, job.Start())
	defer job.Stop()

	require.Eventually(t, func() bool {
		got, err := f.svc.GetByID(ctx, o.ID)
		return err == nil && got.Status == order.StatusCancelled
	}, 2*time.Second, 25*time.Millisecond, "scheduler should cancel the expired search")
}

func TestTransitionTable(t *testing.T) {
	// the table gates roles on top of the status graph
	assert.True(t, transitionAllowed(order.StatusAssigned, order.StatusInProgress, user.RoleDriver))
	assert.False(t, transitionAllowed(order.StatusAssigned, order.StatusInProgress, user.RoleClient))
	assert.True(t, transitionAllowed(order.StatusInProgress, order.StatusCompleted, user.RoleOperator))
	assert.False(t, transitionAllowed(order.StatusInProgress, order.StatusCancelled, user.RoleOperator))
	assert.True(t, transitionAllowed(order.StatusSearching, order.StatusCancelled, user.RoleClient))
	assert.False(t, transitionAllowed(order.StatusSearching, order.StatusInProgress, user.RoleDriver))
	assert.False(t, transitionAllowed(order.StatusCompleted, order.StatusCancelled, user.RoleOperator))
}

// ----- test doubles -----

// closeRecorder only cares about topic shutdowns.
type closeRecorder struct {
	mu     sync.Mutex
	closed []string
}

func (r *closeRecorder) Deliver(hub.Event) {}

func (r *closeRecorder) TopicClosed(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, topic)
}

func (r *closeRecorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}
