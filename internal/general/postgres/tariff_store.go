package postgres

import (
	"context"
	"errors"
	"fmt"

	"tow-dispatch/internal/domain/tariff"
	"tow-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TariffStore reads vehicle-type rates. The table is administered elsewhere;
// only lookups live here.
type TariffStore struct {
	pool *pgxpool.Pool
}

// NewTariffStore constructs a TariffStore bound to the pool.
func NewTariffStore(pool *pgxpool.Pool) *TariffStore {
	return &TariffStore{pool: pool}
}

// GetVehicleType fetches one tariff row.
func (s *TariffStore) GetVehicleType(ctx context.Context, id int64) (*tariff.VehicleType, error) {
	var q querier = s.pool
	if tx, ok := TxFromContext(ctx); ok {
		q = tx
	}

	var vt tariff.VehicleType
	err := q.QueryRow(ctx, `
		SELECT id, name, description, max_weight_tons, base_price, per_km_rate
		FROM vehicle_types
		WHERE id = $1
	`, id).Scan(&vt.ID, &vt.Name, &vt.Description, &vt.MaxWeightTons, &vt.BasePrice, &vt.PerKmRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	if err := vt.Validate(); err != nil {
		return nil, fmt.Errorf("vehicle type %d: %w", id, err)
	}
	return &vt, nil
}
