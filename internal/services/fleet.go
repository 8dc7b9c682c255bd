package services

import (
	"delivery-dispatch-service/internal/domain"
	"fmt"
	"slices"
	"sync"
)

// Fleet owns the vehicles and the current route of each vehicle.
// Callers only ever receive copies.
type Fleet struct {
	mu       sync.RWMutex
	vehicles map[string]*domain.Vehicle
	order    []string
	routes   map[string]*domain.Route
}

func NewFleet() *Fleet {
	return &Fleet{
		vehicles: make(map[string]*domain.Vehicle),
		routes:   make(map[string]*domain.Route),
	}
}

// Register adds or replaces a vehicle.
func (f *Fleet) Register(v *domain.Vehicle) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("register vehicle: id must be non-empty")
	}
	if v.Capacity <= 0 {
		return fmt.Errorf("register vehicle %s: capacity must be > 0", v.ID)
	}
	if len(v.AssignedOrderIDs) > v.Capacity {
		return fmt.Errorf("register vehicle %s: %w", v.ID, domain.ErrCapacityExceeded)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vehicles[v.ID]; !ok {
		f.order = append(f.order, v.ID)
	}
	f.vehicles[v.ID] = v.Clone()
	return nil
}

func (f *Fleet) Vehicle(id string) (*domain.Vehicle, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.vehicles[id]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Vehicles returns copies of all vehicles in registration order.
func (f *Fleet) Vehicles() []*domain.Vehicle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*domain.Vehicle, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.vehicles[id].Clone())
	}
	return out
}

// Available returns copies of vehicles that can take more orders, including
// vehicles already en route with a free slot.
func (f *Fleet) Available() []*domain.Vehicle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := []*domain.Vehicle{}
	for _, id := range f.order {
		v := f.vehicles[id]
		if v.Status != domain.VehicleOffline && v.RemainingCapacity() > 0 {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Commit applies a dispatch outcome: orderIDs join the orders the vehicle
// already holds and route replaces its current route.
func (f *Fleet) Commit(vehicleID string, orderIDs []string, route *domain.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("commit vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}

	added := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if !slices.Contains(v.AssignedOrderIDs, id) && !slices.Contains(added, id) {
			added = append(added, id)
		}
	}
	if len(added) > v.RemainingCapacity() {
		return fmt.Errorf("commit vehicle %s: %d more orders: %w", vehicleID, len(added), domain.ErrCapacityExceeded)
	}
	if err := v.AssignMultiple(added); err != nil {
		return fmt.Errorf("commit vehicle %s: %w", vehicleID, err)
	}
	if route != nil && len(v.AssignedOrderIDs) > 0 {
		f.routes[vehicleID] = route
	}
	return nil
}

// Route returns the current route of the vehicle.
func (f *Fleet) Route(vehicleID string) (*domain.Route, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	r, ok := f.routes[vehicleID]
	return r, ok
}

// PendingStops returns the stops of the vehicle's current route whose
// orders it still holds, in route order.
func (f *Fleet) PendingStops(vehicleID string) []domain.Stop {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.vehicles[vehicleID]
	r, hasRoute := f.routes[vehicleID]
	if !ok || !hasRoute {
		return nil
	}
	out := []domain.Stop{}
	for _, st := range r.Stops {
		if slices.Contains(v.AssignedOrderIDs, st.OrderID) {
			out = append(out, st)
		}
	}
	return out
}

// Release frees the slot an order holds on a vehicle. When the vehicle has
// nothing left its route is dropped and it becomes available again.
func (f *Fleet) Release(vehicleID, orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.vehicles[vehicleID]
	if !ok || !v.Release(orderID) {
		return false
	}
	if len(v.AssignedOrderIDs) == 0 {
		delete(f.routes, vehicleID)
	}
	return true
}

// MoveTo records the vehicle's latest reached location.
func (f *Fleet) MoveTo(vehicleID, locationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.vehicles[vehicleID]; ok {
		v.CurrentLocationID = locationID
	}
}

func (f *Fleet) SetStatus(vehicleID string, status domain.VehicleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("set vehicle status %s: %w", vehicleID, domain.ErrNotFound)
	}
	v.Status = status
	return nil
}
