package services

import (
	"delivery-dispatch-service/internal/domain"
	"errors"
	"testing"
)

func TestFleetCommitAndRelease(t *testing.T) {
	f := NewFleet()
	if err := f.Register(newVehicle(t, "V1", 2, "R1")); err != nil {
		t.Fatalf("register: %v", err)
	}

	route := &domain.Route{VehicleID: "V1", StartLocationID: "R1"}
	if err := f.Commit("V1", []string{"o1", "o2"}, route); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(f.Available()) != 0 {
		t.Fatalf("full vehicle must not be available")
	}
	if _, ok := f.Route("V1"); !ok {
		t.Fatalf("route should be stored")
	}

	if !f.Release("V1", "o1") {
		t.Fatalf("release o1 failed")
	}
	if _, ok := f.Route("V1"); !ok {
		t.Fatalf("route must remain while orders are assigned")
	}
	if !f.Release("V1", "o2") {
		t.Fatalf("release o2 failed")
	}
	if f.Release("V1", "o2") {
		t.Fatalf("double release must report false")
	}
	if _, ok := f.Route("V1"); ok {
		t.Fatalf("route should be dropped once empty")
	}

	v, _ := f.Vehicle("V1")
	if v.Status != domain.VehicleAvailable || v.RemainingCapacity() != 2 {
		t.Fatalf("vehicle = %+v", v)
	}
}

func TestFleetReusesReleasedSlot(t *testing.T) {
	f := NewFleet()
	_ = f.Register(newVehicle(t, "V1", 2, "R1"))

	first := &domain.Route{VehicleID: "V1", Stops: []domain.Stop{
		{OrderID: "a", LocationID: "D1"},
		{OrderID: "b", LocationID: "D2"},
	}}
	if err := f.Commit("V1", []string{"a", "b"}, first); err != nil {
		t.Fatalf("commit: %v", err)
	}
	f.Release("V1", "a")

	avail := f.Available()
	if len(avail) != 1 || avail[0].Status != domain.VehicleEnRoute || avail[0].RemainingCapacity() != 1 {
		t.Fatalf("en-route vehicle with a free slot must be available, got %v", avail)
	}
	if stops := f.PendingStops("V1"); len(stops) != 1 || stops[0].OrderID != "b" {
		t.Fatalf("pending stops = %+v, want b", stops)
	}

	second := &domain.Route{VehicleID: "V1", Stops: []domain.Stop{
		{OrderID: "c", LocationID: "D1"},
		{OrderID: "b", LocationID: "D2"},
	}}
	if err := f.Commit("V1", []string{"c", "b"}, second); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	v, _ := f.Vehicle("V1")
	if len(v.AssignedOrderIDs) != 2 || v.AssignedOrderIDs[0] != "b" || v.AssignedOrderIDs[1] != "c" {
		t.Fatalf("assigned = %v, want [b c]", v.AssignedOrderIDs)
	}
	if err := f.Commit("V1", []string{"d"}, nil); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestFleetCommitRejectsOverCapacity(t *testing.T) {
	f := NewFleet()
	_ = f.Register(newVehicle(t, "V1", 1, "R1"))

	if err := f.Commit("V1", []string{"a", "b"}, nil); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if err := f.Commit("V9", nil, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFleetReturnsCopies(t *testing.T) {
	f := NewFleet()
	_ = f.Register(newVehicle(t, "V1", 1, "R1"))
	_ = f.Register(newVehicle(t, "V2", 1, "R1"))

	vs := f.Vehicles()
	if len(vs) != 2 || vs[0].ID != "V1" || vs[1].ID != "V2" {
		t.Fatalf("vehicles = %v", vs)
	}
	vs[0].CurrentLocationID = "elsewhere"

	v, _ := f.Vehicle("V1")
	if v.CurrentLocationID != "R1" {
		t.Fatalf("fleet state leaked through copy")
	}

	f.MoveTo("V1", "D1")
	if err := f.SetStatus("V2", domain.VehicleOffline); err != nil {
		t.Fatalf("set status: %v", err)
	}
	avail := f.Available()
	if len(avail) != 1 || avail[0].CurrentLocationID != "D1" {
		t.Fatalf("available = %v", avail)
	}
}
