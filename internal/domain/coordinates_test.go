package domain

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// One degree of longitude on the equator.
	got := HaversineKm(0, 0, 0, 1)
	want := EarthRadiusKm * math.Pi / 180
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("distance = %v, want %v", got, want)
	}

	a := Coordinates{Lat: 45.5017, Lon: -73.5673}
	b := Coordinates{Lat: 45.5088, Lon: -73.5878}
	if math.Abs(a.DistanceKm(b)-b.DistanceKm(a)) > 1e-12 {
		t.Fatalf("haversine must be symmetric")
	}
	if a.DistanceKm(a) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestEdgeKeyIsOrderIndependent(t *testing.T) {
	if EdgeKey("R1", "D1") != EdgeKey("D1", "R1") {
		t.Fatalf("edge key must not depend on endpoint order")
	}
	e := Edge{A: "D1", B: "R1"}
	if e.Other("D1") != "R1" || e.Other("R1") != "D1" {
		t.Fatalf("other endpoint mismatch")
	}
}
