package domain

import (
	"errors"
	"testing"
)

func TestVehicleAssignRespectsCapacity(t *testing.T) {
	v, err := NewVehicle("V1", 2, "R1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := v.AssignMultiple([]string{"o1", "o2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != VehicleEnRoute {
		t.Fatalf("status = %q, want %q", v.Status, VehicleEnRoute)
	}

	err = v.Assign("o3")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if len(v.AssignedOrderIDs) != 2 {
		t.Fatalf("assigned = %v, want 2 orders", v.AssignedOrderIDs)
	}
}

func TestVehicleReleaseMakesVehicleAvailable(t *testing.T) {
	v, _ := NewVehicle("V1", 3, "R1")
	_ = v.AssignMultiple([]string{"o1", "o2"})

	if !v.Release("o1") {
		t.Fatalf("expected o1 to be released")
	}
	if v.Release("missing") {
		t.Fatalf("releasing an unknown order should report false")
	}
	if v.Status != VehicleEnRoute {
		t.Fatalf("status = %q, want %q while o2 is assigned", v.Status, VehicleEnRoute)
	}

	v.Release("o2")
	if v.Status != VehicleAvailable {
		t.Fatalf("status = %q, want %q", v.Status, VehicleAvailable)
	}
	if v.RemainingCapacity() != 3 {
		t.Fatalf("remaining = %d, want 3", v.RemainingCapacity())
	}
}

func TestNewVehicleRejectsZeroCapacity(t *testing.T) {
	if _, err := NewVehicle("V1", 0, "R1"); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}

func TestVehicleCloneIsIndependent(t *testing.T) {
	v, _ := NewVehicle("V1", 2, "R1")
	_ = v.Assign("o1")

	cp := v.Clone()
	_ = cp.Assign("o2")

	if len(v.AssignedOrderIDs) != 1 {
		t.Fatalf("original mutated through clone: %v", v.AssignedOrderIDs)
	}
}
