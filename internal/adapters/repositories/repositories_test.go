package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "dispatch.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := InitSchema(context.Background(), d); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return d
}

const seedJSON = `{
	"locations": [
		{"id": "R1", "name": "Pizza Place", "lat": 40.7128, "lon": -74.0060, "kind": "restaurant"},
		{"id": "D1", "name": "Customer A", "lat": 40.7580, "lon": -73.9855, "kind": "customer"},
		{"id": "D2", "name": "Customer B", "lat": 40.7489, "lon": -73.9680, "kind": "customer"}
	],
	"edges": [
		{"a": "R1", "b": "D1", "km": 5.2},
		{"a": "D1", "b": "D2"}
	],
	"vehicles": [{"id": "V1", "capacity": 5, "start_location_id": "R1"}],
	"menu_items": [{"id": "m1", "name": "Pepperoni Pizza", "frequency": 3}],
	"orders": [
		{
			"id": "o1", "restaurant_location_id": "R1", "delivery_location_id": "D1",
			"total": 30, "payment_method": "card",
			"items": [{"id": "m1", "name": "Pepperoni Pizza", "unit_price": 15, "quantity": 2}]
		},
		{"id": "o2", "delivery_location_id": "D2", "total": 12, "is_express": true}
	]
}`

func seedTestDB(t *testing.T, d *db.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if err := SeedFromJSON(context.Background(), d, path); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	if err := InitSchema(context.Background(), d); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if err := InitSchema(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil DB")
	}
}

func TestSeedAndLoadNetwork(t *testing.T) {
	d := openTestDB(t)
	seedTestDB(t, d)
	ctx := context.Background()

	repo := NewSQLLocationRepository(d)
	locs, err := repo.ListLocations(ctx)
	if err != nil {
		t.Fatalf("list locations: %v", err)
	}
	if len(locs) != 3 || locs[0].ID != "D1" || locs[2].Kind != domain.KindRestaurant {
		t.Fatalf("locations = %+v", locs)
	}

	edges, err := repo.ListEdges(ctx)
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 2 || edges[0].BaseDistanceKm != 0 || edges[1].BaseDistanceKm != 5.2 {
		t.Fatalf("edges = %+v", edges)
	}

	vehicles, err := NewSQLVehicleRepository(d).ListVehicles(ctx)
	if err != nil {
		t.Fatalf("list vehicles: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].Capacity != 5 || vehicles[0].Status != domain.VehicleAvailable {
		t.Fatalf("vehicles = %+v", vehicles)
	}

	items, err := NewSQLMenuRepository(d).ListMenuItems(ctx)
	if err != nil {
		t.Fatalf("list menu: %v", err)
	}
	if len(items) != 1 || items[0].Frequency != 3 {
		t.Fatalf("menu = %+v", items)
	}
}

func TestSeedRejectsDanglingReferences(t *testing.T) {
	d := openTestDB(t)
	err := SeedData(context.Background(), d, Seed{
		Locations: []LocationSeed{{ID: "R1", Kind: "restaurant"}},
		Edges:     []EdgeSeed{{A: "R1", B: "X"}},
	})
	if !errors.Is(err, domain.ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	d := openTestDB(t)
	seedTestDB(t, d)
	ctx := context.Background()
	repo := NewSQLOrderRepository(d)

	pending, err := repo.ListPendingOrders(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "o1" || pending[1].ID != "o2" {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].PaymentMethod != domain.PaymentCard || len(pending[0].Items) != 1 || pending[0].Items[0].Quantity != 2 {
		t.Fatalf("o1 = %+v", pending[0])
	}
	if !pending[1].IsExpress || pending[1].PaymentMethod != domain.PaymentCash {
		t.Fatalf("o2 = %+v", pending[1])
	}

	latest := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	o := domain.Order{
		ID:                 "o3",
		DeliveryLocationID: "D2",
		PaymentMethod:      domain.PaymentCash,
		TimeWindow:         &domain.TimeWindow{Latest: latest},
		CreatedAt:          time.Now().Add(time.Hour),
	}
	if err := repo.SaveOrder(ctx, o); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.UpdateOrderStatus(ctx, "o1", domain.StatusConfirmed); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := repo.UpdateOrderStatus(ctx, "nope", domain.StatusConfirmed); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	pending, err = repo.ListPendingOrders(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "o2" || pending[1].ID != "o3" {
		t.Fatalf("pending = %+v", pending)
	}
	w := pending[1].TimeWindow
	if w == nil || !w.Latest.Equal(latest) || !w.Earliest.IsZero() {
		t.Fatalf("time window = %+v", w)
	}
}

func TestRouteStoreSavesStops(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	depart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	routes := []*domain.Route{{
		VehicleID:       "V1",
		StartLocationID: "R1",
		DepartAt:        depart,
		Stops: []domain.Stop{
			{OrderID: "o1", LocationID: "D1", CumulativeDistanceKm: 2, EstimatedArrival: depart.Add(29 * time.Minute)},
			{OrderID: "o2", LocationID: "D2", CumulativeDistanceKm: 3, EstimatedArrival: depart.Add(36 * time.Minute)},
		},
		TotalDistanceKm: 6,
	}}

	store := NewSQLRouteStore(d)
	for range 2 {
		if err := store.SaveRoutes(ctx, "batch-1", routes); err != nil {
			t.Fatalf("save routes: %v", err)
		}
	}

	var n int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_routes WHERE batch_id = 'batch-1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}
