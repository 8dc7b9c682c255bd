package repositories

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/ports"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type LocationSeed struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Kind string  `json:"kind"`
}

// EdgeSeed with Km omitted is stored as 0 and derived from coordinates at load.
type EdgeSeed struct {
	A  string  `json:"a"`
	B  string  `json:"b"`
	Km float64 `json:"km"`
}

type VehicleSeed struct {
	ID              string `json:"id"`
	Capacity        int    `json:"capacity"`
	StartLocationID string `json:"start_location_id"`
}

type MenuItemSeed struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Frequency int    `json:"frequency"`
}

type OrderItemSeed struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type OrderSeed struct {
	ID                   string          `json:"id"`
	RestaurantLocationID string          `json:"restaurant_location_id"`
	DeliveryLocationID   string          `json:"delivery_location_id"`
	Total                float64         `json:"total"`
	PaymentMethod        string          `json:"payment_method"`
	IsPremium            bool            `json:"is_premium"`
	IsExpress            bool            `json:"is_express"`
	Items                []OrderItemSeed `json:"items"`
}

// Seed is the JSON document read by SeedFromJSON.
type Seed struct {
	Locations []LocationSeed `json:"locations"`
	Edges     []EdgeSeed     `json:"edges"`
	Vehicles  []VehicleSeed  `json:"vehicles"`
	MenuItems []MenuItemSeed `json:"menu_items"`
	Orders    []OrderSeed    `json:"orders"`
}

// Populate the database with network, fleet, menu and order data from a JSON file.
func SeedFromJSON(ctx context.Context, d *db.DB, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed: read %q: %w", jsonPath, err)
	}

	var data Seed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed: parse json: %w", err)
	}

	return SeedData(ctx, d, data)
}

// SeedData validates and upserts data. Locations, edges and vehicles are
// written in one transaction; orders go through SQLOrderRepository.
func SeedData(ctx context.Context, d *db.DB, data Seed) error {
	if err := validateSeed(data); err != nil {
		return err
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	locQ := d.Q(d.Upsert("locations", []string{"id"}, []string{"id", "name", "lat", "lon", "kind"}))
	for _, l := range data.Locations {
		kind, _ := domain.ParseLocationKind(l.Kind)
		if _, err := tx.ExecContext(ctx, locQ, l.ID, strings.TrimSpace(l.Name), l.Lat, l.Lon, string(kind)); err != nil {
			return fmt.Errorf("seed: insert location %s: %w", l.ID, err)
		}
	}

	edgeQ := d.Q(d.Upsert("edges", []string{"a", "b"}, []string{"a", "b", "base_km"}))
	for _, e := range data.Edges {
		if _, err := tx.ExecContext(ctx, edgeQ, e.A, e.B, e.Km); err != nil {
			return fmt.Errorf("seed: insert edge %s-%s: %w", e.A, e.B, err)
		}
	}

	vehQ := d.Q(d.Upsert("vehicles", []string{"id"}, []string{"id", "capacity", "start_location_id", "status"}))
	for _, v := range data.Vehicles {
		if _, err := tx.ExecContext(ctx, vehQ, v.ID, v.Capacity, v.StartLocationID, string(domain.VehicleAvailable)); err != nil {
			return fmt.Errorf("seed: insert vehicle %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit tx: %w", err)
	}

	menu := NewSQLMenuRepository(d)
	for _, it := range data.MenuItems {
		if err := menu.SaveMenuItem(ctx, ports.MenuItem{ID: it.ID, Name: it.Name, Frequency: it.Frequency}); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	orders := NewSQLOrderRepository(d)
	now := time.Now()
	for i, seed := range data.Orders {
		o := domain.Order{
			ID:                   seed.ID,
			RestaurantLocationID: seed.RestaurantLocationID,
			DeliveryLocationID:   seed.DeliveryLocationID,
			Total:                seed.Total,
			IsPremiumCustomer:    seed.IsPremium,
			IsExpress:            seed.IsExpress,
			Status:               domain.StatusPending,
			// Keeps seed order when pending orders are listed oldest first.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
		o.PaymentMethod = domain.PaymentCash
		if seed.PaymentMethod != "" {
			o.PaymentMethod, _ = domain.ParsePaymentMethod(seed.PaymentMethod)
		}
		for _, it := range seed.Items {
			o.Items = append(o.Items, domain.OrderItem{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
		}
		if err := orders.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	return nil
}

func validateSeed(data Seed) error {
	known := make(map[string]struct{}, len(data.Locations))
	for i, l := range data.Locations {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("seed: location at index %d: id cannot be empty", i+1)
		}
		if _, err := domain.ParseLocationKind(l.Kind); err != nil {
			return fmt.Errorf("seed: location %s: %w", l.ID, err)
		}
		if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
			return fmt.Errorf("seed: location %s: coordinates out of range", l.ID)
		}
		known[l.ID] = struct{}{}
	}

	requireKnown := func(what, id string) error {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("seed: %s references %q: %w", what, id, domain.ErrUnknownLocation)
		}
		return nil
	}

	for i, e := range data.Edges {
		if e.Km < 0 || e.A == e.B {
			return fmt.Errorf("seed: edge at index %d: %w", i+1, domain.ErrInvalidDistance)
		}
		if err := requireKnown("edge", e.A); err != nil {
			return err
		}
		if err := requireKnown("edge", e.B); err != nil {
			return err
		}
	}

	for i, v := range data.Vehicles {
		if strings.TrimSpace(v.ID) == "" || v.Capacity <= 0 {
			return fmt.Errorf("seed: vehicle at index %d: id must be set and capacity > 0", i+1)
		}
		if err := requireKnown("vehicle "+v.ID, v.StartLocationID); err != nil {
			return err
		}
	}

	for i, it := range data.MenuItems {
		if strings.TrimSpace(it.ID) == "" || strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("seed: menu item at index %d: id and name cannot be empty", i+1)
		}
	}

	for i, o := range data.Orders {
		if strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("seed: order at index %d: id cannot be empty", i+1)
		}
		if err := requireKnown("order "+o.ID, o.DeliveryLocationID); err != nil {
			return err
		}
		if o.PaymentMethod == "" {
			continue
		}
		if _, err := domain.ParsePaymentMethod(o.PaymentMethod); err != nil {
			return fmt.Errorf("seed: order %s: %w", o.ID, err)
		}
	}
	return nil
}
