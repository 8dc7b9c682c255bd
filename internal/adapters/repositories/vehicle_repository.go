package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"errors"
	"fmt"
)

// SQL-backed implementation of the VehicleRepository port.
type SQLVehicleRepository struct{ DB *db.DB }

func NewSQLVehicleRepository(d *db.DB) *SQLVehicleRepository {
	return &SQLVehicleRepository{DB: d}
}

// Return the fleet. Vehicles always load without assignments.
func (s *SQLVehicleRepository) ListVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	if s.DB == nil {
		return nil, errors.New("sql vehicle repository: DB is nil")
	}

	query := `
	SELECT
		id,
		capacity,
		start_location_id,
		status
	FROM vehicles
	ORDER BY id;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: query vehicles table: %w", err)
	}
	defer rows.Close()

	vehicles := make([]*domain.Vehicle, 0, 16)
	for rows.Next() {
		var (
			id, start, status string
			capacity          int
		)
		if err := rows.Scan(&id, &capacity, &start, &status); err != nil {
			return nil, fmt.Errorf("list vehicles: scan row: %w", err)
		}

		v, err := domain.NewVehicle(id, capacity, start)
		if err != nil {
			return nil, fmt.Errorf("list vehicles: %w", err)
		}
		if domain.VehicleStatus(status) == domain.VehicleOffline {
			v.Status = domain.VehicleOffline
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles: row iteration: %w", err)
	}

	return vehicles, nil
}
