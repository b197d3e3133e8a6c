package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/domain/truck"
	"tow-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TruckStore reads fleet state. Availability flips happen only in
// OrderStore transactions; this store only writes location reports.
type TruckStore struct {
	pool *pgxpool.Pool
}

// NewTruckStore constructs a TruckStore bound to the pool.
func NewTruckStore(pool *pgxpool.Pool) *TruckStore {
	return &TruckStore{pool: pool}
}

const truckColumns = `
	id, created_at, updated_at, license_plate, model, capacity_tons,
	vehicle_type_ids, driver_id, driver_rating, status,
	location_lat, location_lon, location_updated_at`

// GetByID fetches a truck by primary key.
func (s *TruckStore) GetByID(ctx context.Context, id string) (*truck.TowTruck, error) {
	row := s.querier(ctx).QueryRow(ctx, `SELECT `+truckColumns+` FROM tow_trucks WHERE id = $1`, id)
	t, err := scanTruck(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetByDriver fetches the truck a driver operates.
func (s *TruckStore) GetByDriver(ctx context.Context, driverID string) (*truck.TowTruck, error) {
	row := s.querier(ctx).QueryRow(ctx, `SELECT `+truckColumns+` FROM tow_trucks WHERE driver_id = $1`, driverID)
	t, err := scanTruck(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListAvailable returns AVAILABLE trucks whose capability class covers the
// vehicle type and that have reported a location.
func (s *TruckStore) ListAvailable(ctx context.Context, vehicleTypeID int64) ([]*truck.TowTruck, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT `+truckColumns+`
		FROM tow_trucks
		WHERE status = 'AVAILABLE'
		  AND $1 = ANY(vehicle_type_ids)
		  AND location_lat IS NOT NULL
	`, vehicleTypeID)
	if err != nil {
		return nil, fmt.Errorf("query available trucks: %w", err)
	}
	defer rows.Close()

	var out []*truck.TowTruck
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan truck: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateLocation records a location report. Older timestamps never overwrite
// a newer stored position.
func (s *TruckStore) UpdateLocation(ctx context.Context, truckID string, point geo.Point, at time.Time) error {
	tag, err := s.querier(ctx).Exec(ctx, `
		UPDATE tow_trucks
		SET location_lat = $1,
		    location_lon = $2,
		    location_updated_at = $3,
		    updated_at = now()
		WHERE id = $4
		  AND (location_updated_at IS NULL OR location_updated_at < $3)
	`, point.Latitude, point.Longitude, at, truckID)
	if err != nil {
		return fmt.Errorf("update truck location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// stale report or unknown truck; check which
		var exists bool
		if err := s.querier(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tow_trucks WHERE id = $1)`, truckID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ports.ErrNotFound
		}
	}
	return nil
}

func (s *TruckStore) querier(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// scanTruck reads one row of truckColumns.
func scanTruck(row pgx.Row) (*truck.TowTruck, error) {
	var t truck.TowTruck
	var status string
	var lat, lon *float64
	var locAt *time.Time

	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.LicensePlate, &t.Model, &t.CapacityTons,
		&t.VehicleTypeIDs, &t.DriverID, &t.DriverRating, &status,
		&lat, &lon, &locAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Status, err = truck.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("truck %s: %w", t.ID, err)
	}
	if lat != nil && lon != nil && locAt != nil {
		t.Location = &geo.Location{
			Point:     geo.Point{Latitude: *lat, Longitude: *lon},
			UpdatedAt: *locAt,
		}
	}
	return &t, nil
}
