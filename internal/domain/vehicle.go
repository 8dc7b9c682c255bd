package domain

import (
	"fmt"
	"slices"
)

type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleEnRoute   VehicleStatus = "en-route"
	VehicleOffline   VehicleStatus = "offline"
)

// Delivery vehicle holding a bounded, ordered set of assigned orders.
// Orders are referenced by id; the vehicle never owns order values.
type Vehicle struct {
	ID                string
	Capacity          int
	CurrentLocationID string
	AssignedOrderIDs  []string
	Status            VehicleStatus
}

func NewVehicle(id string, capacity int, startLocationID string) (*Vehicle, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("new vehicle %s: capacity must be > 0, got %d", id, capacity)
	}
	return &Vehicle{
		ID:                id,
		Capacity:          capacity,
		CurrentLocationID: startLocationID,
		Status:            VehicleAvailable,
	}, nil
}

// RemainingCapacity is the number of orders the vehicle can still accept.
func (v *Vehicle) RemainingCapacity() int {
	return v.Capacity - len(v.AssignedOrderIDs)
}

// Assign a single order to the vehicle.
func (v *Vehicle) Assign(orderID string) error {
	if len(v.AssignedOrderIDs) >= v.Capacity {
		return fmt.Errorf("assign order %s: vehicle %s (capacity=%d): %w", orderID, v.ID, v.Capacity, ErrCapacityExceeded)
	}
	v.AssignedOrderIDs = append(v.AssignedOrderIDs, orderID)
	v.Status = VehicleEnRoute
	return nil
}

// Assign multiple orders to the vehicle, stopping at the first failure.
func (v *Vehicle) AssignMultiple(orderIDs []string) error {
	for _, id := range orderIDs {
		if err := v.Assign(id); err != nil {
			return err
		}
	}

	return nil
}

// Release frees the slot held by orderID. The vehicle becomes available
// again once nothing is assigned. Releasing an unknown order is a no-op.
func (v *Vehicle) Release(orderID string) bool {
	i := slices.Index(v.AssignedOrderIDs, orderID)
	if i < 0 {
		return false
	}
	v.AssignedOrderIDs = slices.Delete(v.AssignedOrderIDs, i, i+1)
	if len(v.AssignedOrderIDs) == 0 && v.Status == VehicleEnRoute {
		v.Status = VehicleAvailable
	}
	return true
}

// Clone returns a copy that shares no slices with v.
func (v *Vehicle) Clone() *Vehicle {
	cp := *v
	cp.AssignedOrderIDs = slices.Clone(v.AssignedOrderIDs)
	return &cp
}
