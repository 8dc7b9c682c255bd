package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"fmt"

	"go.uber.org/zap"
)

// Repositories the engine is loaded from at startup. Nil members are skipped.
type Sources struct {
	Locations ports.LocationRepository
	Vehicles  ports.VehicleRepository
	Menu      ports.MenuRepository
	Orders    ports.OrderRepository
}

// LoadGraph adds every stored location and edge to g. Edges without a
// stored length get their haversine distance.
func LoadGraph(ctx context.Context, repo ports.LocationRepository, g *LocationGraph) error {
	locs, err := repo.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("load graph: list locations: %w", err)
	}
	for _, l := range locs {
		if err := g.AddLocation(l); err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
	}

	edges, err := repo.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("load graph: list edges: %w", err)
	}
	for _, e := range edges {
		if e.BaseDistanceKm > 0 {
			err = g.AddRoute(e.A, e.B, e.BaseDistanceKm)
		} else {
			_, err = g.AddRouteByCoordinates(e.A, e.B)
		}
		if err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
	}
	return nil
}

// Bootstrap loads the graph, fleet, menu catalog and pending orders.
func Bootstrap(ctx context.Context, src Sources, g *LocationGraph, fleet *Fleet, menu *MenuSearchIndex, d *Dispatcher) error {
	if src.Locations != nil {
		if err := LoadGraph(ctx, src.Locations, g); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}

	if src.Vehicles != nil {
		vehicles, err := src.Vehicles.ListVehicles(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap: list vehicles: %w", err)
		}
		for _, v := range vehicles {
			if err := fleet.Register(v); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
		}
	}

	if src.Menu != nil && menu != nil {
		items, err := src.Menu.ListMenuItems(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap: list menu items: %w", err)
		}
		for _, it := range items {
			menu.Insert(it)
		}
	}

	pending := 0
	if src.Orders != nil && d != nil {
		orders, err := src.Orders.ListPendingOrders(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap: list pending orders: %w", err)
		}
		for _, o := range orders {
			if o.Status != "" && o.Status != domain.StatusPending {
				continue
			}
			d.Scheduler.Enqueue(o)
			if d.Cache != nil {
				d.Cache.Put(ctx, o)
			}
			pending++
		}
	}

	obs.L().Info("engine bootstrapped",
		zap.Int("locations", g.Len()),
		zap.Int("vehicles", len(fleet.Vehicles())),
		zap.Int("pending_orders", pending),
	)
	return nil
}
