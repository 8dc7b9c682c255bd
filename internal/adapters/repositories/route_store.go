package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
)

// SQL-backed implementation of the RouteStore port. Each stop of each
// route is one row keyed by batch, vehicle and stop position.
type SQLRouteStore struct{ DB *db.DB }

func NewSQLRouteStore(d *db.DB) *SQLRouteStore {
	return &SQLRouteStore{DB: d}
}

func (s *SQLRouteStore) SaveRoutes(ctx context.Context, batchID string, routes []*domain.Route) (err error) {
	defer obs.Time(ctx, "repo.SaveRoutes")(&err)

	if s.DB == nil {
		return errors.New("sql route store: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save routes %s: begin tx: %w", batchID, err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.DB.Upsert("dispatch_routes",
		[]string{"batch_id", "vehicle_id", "seq"},
		[]string{"batch_id", "vehicle_id", "seq", "order_id", "location_id", "cumulative_km", "eta", "total_km"},
	)
	stmt, err := tx.PrepareContext(ctx, s.DB.Q(q))
	if err != nil {
		return fmt.Errorf("save routes %s: prepare insert: %w", batchID, err)
	}
	defer stmt.Close()

	for _, r := range routes {
		for i, st := range r.Stops {
			_, err := stmt.ExecContext(ctx,
				batchID, r.VehicleID, i, st.OrderID, st.LocationID,
				st.CumulativeDistanceKm, formatTime(st.EstimatedArrival), r.TotalDistanceKm,
			)
			if err != nil {
				return fmt.Errorf("save routes %s: vehicle %s stop #%d: %w", batchID, r.VehicleID, i+1, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save routes %s: commit tx: %w", batchID, err)
	}
	return nil
}
