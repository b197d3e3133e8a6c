package postgres

import (
	"context"
	"errors"
	"fmt"

	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/user"
	"tow-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderStore persists orders using pgx and plain SQL. The conditional writes
// (UpdateStatus, AssignTruck) run inside a unit-of-work transaction so the
// truck availability flip can never be observed without the matching order
// row change.
type OrderStore struct {
	pool *pgxpool.Pool
	uow  ports.UnitOfWork
}

// NewOrderStore constructs an OrderStore bound to the pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool, uow: NewUnitOfWork(pool)}
}

const orderColumns = `
	id, created_at, updated_at, client_id, tow_truck_id, vehicle_type_id,
	status, priority, pickup_lat, pickup_lon, pickup_address,
	delivery_lat, delivery_lon, delivery_address, distance_km, description,
	estimated_price, final_price, search_started_at, assigned_at,
	completed_at, cancelled_at, cancellation_reason`

// Create inserts a new order row and the initial history record.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO orders (
				id, created_at, updated_at, client_id, vehicle_type_id,
				status, priority, pickup_lat, pickup_lon, pickup_address,
				delivery_lat, delivery_lon, delivery_address, distance_km,
				description, estimated_price
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`,
			o.ID, o.CreatedAt, o.UpdatedAt, o.ClientID, o.VehicleTypeID,
			o.Status.String(), o.Priority.String(),
			o.Pickup.Latitude, o.Pickup.Longitude, o.PickupAddress,
			o.Delivery.Latitude, o.Delivery.Longitude, o.DeliveryAddress,
			o.DistanceKM, o.Description, o.EstimatedPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		return insertStatusHistory(ctx, tx, o.ID, "", o.Status.String(), user.RoleSystem.String(), "")
	})
}

// GetByID fetches an order by primary key.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := s.querier(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListSearching returns SEARCHING orders ordered by priority rank
// (descending) then creation time, so urgent work is matched first.
func (s *OrderStore) ListSearching(ctx context.Context, limit int) ([]*order.Order, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'SEARCHING'
		ORDER BY
			CASE priority
				WHEN 'URGENT' THEN 3
				WHEN 'HIGH'   THEN 2
				WHEN 'NORMAL' THEN 1
				ELSE 0
			END DESC,
			created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query searching orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ActiveOrderForTruck returns the truck's current non-terminal order.
func (s *OrderStore) ActiveOrderForTruck(ctx context.Context, truckID string) (*order.Order, error) {
	row := s.querier(ctx).QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tow_truck_id = $1
		  AND status IN ('ASSIGNED', 'IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1
	`, truckID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// UpdateStatus is the compare-and-set edge write: the row changes only if it
// still holds `from`. A terminal target releases the assigned truck in the
// same transaction and freezes the final price on completion.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, from, to order.Status, actor user.Role, reason string) (*order.Order, error) {
	var updated *order.Order

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		query := `
			UPDATE orders
			SET status = $1,
			    updated_at = now()`
		switch to {
		case order.StatusSearching:
			query += `, search_started_at = now()`
		case order.StatusAssigned:
			query += `, assigned_at = now()`
		case order.StatusCompleted:
			query += `, completed_at = now(), final_price = COALESCE(final_price, estimated_price)`
		case order.StatusCancelled:
			query += `, cancelled_at = now(), cancellation_reason = NULLIF($4, '')`
		}
		query += `
			WHERE id = $2 AND status = $3
			RETURNING ` + orderColumns

		var row pgx.Row
		if to == order.StatusCancelled {
			row = tx.QueryRow(ctx, query, to.String(), orderID, from.String(), reason)
		} else {
			row = tx.QueryRow(ctx, query, to.String(), orderID, from.String())
		}

		updated, err = scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.conflictOrMissing(ctx, tx, orderID)
			}
			return err
		}

		if to.Terminal() && updated.TowTruckID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE tow_trucks
				SET status = 'AVAILABLE', updated_at = now()
				WHERE id = $1 AND status = 'BUSY'
			`, *updated.TowTruckID)
			if err != nil {
				return fmt.Errorf("release truck: %w", err)
			}
		}

		return insertStatusHistory(ctx, tx, orderID, from.String(), to.String(), actor.String(), reason)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AssignTruck couples SEARCHING->ASSIGNED with the truck's AVAILABLE->BUSY
// flip in one transaction; losing either conditional write rolls back both.
func (s *OrderStore) AssignTruck(ctx context.Context, orderID, truckID string) (*order.Order, error) {
	var updated *order.Order

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE tow_trucks
			SET status = 'BUSY', updated_at = now()
			WHERE id = $1 AND status = 'AVAILABLE'
		`, truckID)
		if err != nil {
			return fmt.Errorf("mark truck busy: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ports.ErrTruckUnavailable
		}

		row := tx.QueryRow(ctx, `
			UPDATE orders
			SET status = 'ASSIGNED',
			    tow_truck_id = $1,
			    assigned_at = now(),
			    updated_at = now()
			WHERE id = $2 AND status = 'SEARCHING'
			RETURNING `+orderColumns, truckID, orderID)

		updated, err = scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.conflictOrMissing(ctx, tx, orderID)
			}
			return err
		}

		return insertStatusHistory(ctx, tx, orderID,
			order.StatusSearching.String(), order.StatusAssigned.String(), user.RoleSystem.String(), "")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ----- helpers -----

func (s *OrderStore) querier(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// conflictOrMissing disambiguates a failed conditional write.
func (s *OrderStore) conflictOrMissing(ctx context.Context, tx pgx.Tx, orderID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrStatusConflict
}

// insertStatusHistory appends one row to the order's audit trail.
func insertStatusHistory(ctx context.Context, tx pgx.Tx, orderID, from, to, actor, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor, reason)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''))
	`, orderID, from, to, actor, reason)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// scanOrder reads one row of orderColumns.
func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	var status, priority string

	err := row.Scan(
		&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.ClientID, &o.TowTruckID, &o.VehicleTypeID,
		&status, &priority,
		&o.Pickup.Latitude, &o.Pickup.Longitude, &o.PickupAddress,
		&o.Delivery.Latitude, &o.Delivery.Longitude, &o.DeliveryAddress,
		&o.DistanceKM, &o.Description,
		&o.EstimatedPrice, &o.FinalPrice,
		&o.SearchStartedAt, &o.AssignedAt, &o.CompletedAt, &o.CancelledAt,
		&o.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.Priority = order.Priority(priority)
	return &o, nil
}
