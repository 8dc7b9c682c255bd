package repositories

import (
	"context"
	"delivery-dispatch-service/internal/platform/db"
	"errors"
	"fmt"
)

// Initialize the database schema. The statements are valid for both SQLite
// and PostgreSQL; timestamps are stored as RFC 3339 text.
func InitSchema(ctx context.Context, d *db.DB) error {
	if d == nil || d.DB == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createLocationsQuery := `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		kind TEXT NOT NULL
	);
	`

	createEdgesQuery := `
	CREATE TABLE IF NOT EXISTS edges (
		a TEXT NOT NULL,
		b TEXT NOT NULL,
		base_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (a, b)
	);
	`

	createVehiclesQuery := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		capacity INTEGER NOT NULL,
		start_location_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'available'
	);
	`

	createOrdersQuery := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		restaurant_location_id TEXT NOT NULL DEFAULT '',
		delivery_location_id TEXT NOT NULL,
		total DOUBLE PRECISION NOT NULL DEFAULT 0,
		payment_method TEXT NOT NULL DEFAULT 'cash',
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		is_express BOOLEAN NOT NULL DEFAULT FALSE,
		tw_earliest TEXT,
		tw_latest TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);
	`

	createOrderItemsQuery := `
	CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		quantity INTEGER NOT NULL,
		PRIMARY KEY (order_id, seq)
	);
	`

	createMenuItemsQuery := `
	CREATE TABLE IF NOT EXISTS menu_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 0
	);
	`

	createDispatchRoutesQuery := `
	CREATE TABLE IF NOT EXISTS dispatch_routes (
		batch_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		order_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		cumulative_km DOUBLE PRECISION NOT NULL,
		eta TEXT NOT NULL,
		total_km DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (batch_id, vehicle_id, seq)
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_orders_status_created
	ON orders(status, created_at);
	`

	statements := []string{
		createLocationsQuery,
		createEdgesQuery,
		createVehiclesQuery,
		createOrdersQuery,
		createOrderItemsQuery,
		createMenuItemsQuery,
		createDispatchRoutesQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
