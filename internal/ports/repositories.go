package ports

import (
	"context"
	"delivery-dispatch-service/internal/domain"
)

// Port: a boundary for loading the delivery network.
type LocationRepository interface {
	ListLocations(ctx context.Context) ([]domain.Location, error)
	ListEdges(ctx context.Context) ([]domain.Edge, error)
}

// Port: a boundary for loading the fleet.
type VehicleRepository interface {
	ListVehicles(ctx context.Context) ([]*domain.Vehicle, error)
}

// Port: a boundary for order persistence.
type OrderRepository interface {
	// Retrieve orders that have not been dispatched yet.
	ListPendingOrders(ctx context.Context) ([]domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.DeliveryStatus) error
}

// Catalog entry indexed for autocomplete.
type MenuItem struct {
	ID        string
	Name      string
	Frequency int
}

// Port: a boundary for reading the menu catalog.
type MenuRepository interface {
	ListMenuItems(ctx context.Context) ([]MenuItem, error)
}

// Port: persists the routes produced by a dispatch batch.
type RouteStore interface {
	SaveRoutes(ctx context.Context, batchID string, routes []*domain.Route) error
}
