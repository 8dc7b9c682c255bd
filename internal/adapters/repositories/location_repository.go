package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
)

// SQL-backed implementation of the LocationRepository port.
type SQLLocationRepository struct{ DB *db.DB }

func NewSQLLocationRepository(d *db.DB) *SQLLocationRepository {
	return &SQLLocationRepository{DB: d}
}

// Return all locations ordered by id.
func (s *SQLLocationRepository) ListLocations(ctx context.Context) (_ []domain.Location, err error) {
	defer obs.Time(ctx, "repo.ListLocations")(&err)

	if s.DB == nil {
		return nil, errors.New("sql location repository: DB is nil")
	}

	query := `
	SELECT
		id,
		name,
		lat,
		lon,
		kind
	FROM locations
	ORDER BY id;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list locations: query locations table: %w", err)
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 64)
	for rows.Next() {
		var (
			l    domain.Location
			kind string
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Coords.Lat, &l.Coords.Lon, &kind); err != nil {
			return nil, fmt.Errorf("list locations: scan row: %w", err)
		}
		if l.Kind, err = domain.ParseLocationKind(kind); err != nil {
			return nil, fmt.Errorf("list locations: location %s: %w", l.ID, err)
		}
		locations = append(locations, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations: row iteration: %w", err)
	}

	return locations, nil
}

// Return all edges. A base_km of zero means "derive from coordinates".
func (s *SQLLocationRepository) ListEdges(ctx context.Context) (_ []domain.Edge, err error) {
	defer obs.Time(ctx, "repo.ListEdges")(&err)

	if s.DB == nil {
		return nil, errors.New("sql location repository: DB is nil")
	}

	query := `
	SELECT a, b, base_km
	FROM edges
	ORDER BY a, b;
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list edges: query edges table: %w", err)
	}
	defer rows.Close()

	edges := make([]domain.Edge, 0, 64)
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.A, &e.B, &e.BaseDistanceKm); err != nil {
			return nil, fmt.Errorf("list edges: scan row: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edges: row iteration: %w", err)
	}

	return edges, nil
}
