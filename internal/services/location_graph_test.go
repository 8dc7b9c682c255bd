package services

import (
	"delivery-dispatch-service/internal/domain"
	"errors"
	"testing"
	"time"
)

func loc(id string, lat, lon float64) domain.Location {
	return domain.Location{ID: id, Name: id, Coords: domain.Coordinates{Lat: lat, Lon: lon}, Kind: domain.KindCustomer}
}

// scenarioGraph builds R1(0,0) D1(0,1) D2(1,1) with R1-D1=2, R1-D2=3, D1-D2=1.
func scenarioGraph(t *testing.T, traffic *TrafficModel) *LocationGraph {
	t.Helper()

	g := NewLocationGraph(traffic)
	r1 := loc("R1", 0, 0)
	r1.Kind = domain.KindRestaurant
	for _, l := range []domain.Location{r1, loc("D1", 0, 1), loc("D2", 1, 1)} {
		if err := g.AddLocation(l); err != nil {
			t.Fatalf("add location %s: %v", l.ID, err)
		}
	}
	for _, e := range []struct {
		a, b string
		km   float64
	}{
		{"R1", "D1", 2},
		{"R1", "D2", 3},
		{"D1", "D2", 1},
	} {
		if err := g.AddRoute(e.a, e.b, e.km); err != nil {
			t.Fatalf("add route %s-%s: %v", e.a, e.b, err)
		}
	}
	return g
}

func neighborMap(t *testing.T, g *LocationGraph, id string) map[string]float64 {
	t.Helper()

	seq, err := g.Neighbors(id)
	if err != nil {
		t.Fatalf("neighbors %s: %v", id, err)
	}
	out := map[string]float64{}
	for n, w := range seq {
		out[n] = w
	}
	return out
}

func TestAddRouteIsSymmetric(t *testing.T) {
	g := scenarioGraph(t, nil)

	for _, e := range g.Edges() {
		ab := neighborMap(t, g, e.A)[e.B]
		ba := neighborMap(t, g, e.B)[e.A]
		if ab != ba {
			t.Fatalf("edge %s: %v != %v", e.Key(), ab, ba)
		}
	}
}

func TestAddRouteOverwritesWithoutDuplicatingAdjacency(t *testing.T) {
	g := scenarioGraph(t, nil)

	if err := g.AddRoute("D1", "R1", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := neighborMap(t, g, "R1")
	if len(n) != 2 || n["D1"] != 7 {
		t.Fatalf("neighbors of R1 = %v", n)
	}
	if len(g.Edges()) != 3 {
		t.Fatalf("edges = %d, want 3", len(g.Edges()))
	}
}

func TestAddRouteValidation(t *testing.T) {
	g := scenarioGraph(t, nil)

	if err := g.AddRoute("R1", "D1", -1); !errors.Is(err, domain.ErrInvalidDistance) {
		t.Fatalf("expected ErrInvalidDistance, got %v", err)
	}
	if err := g.AddRoute("R1", "X", 1); !errors.Is(err, domain.ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}
	if _, err := g.Neighbors("X"); !errors.Is(err, domain.ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}
}

func TestAddLocationIsIdempotent(t *testing.T) {
	g := scenarioGraph(t, nil)

	renamed := loc("D1", 0, 1)
	renamed.Name = "Customer One"
	if err := g.AddLocation(renamed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Len() != 3 {
		t.Fatalf("len = %d, want 3", g.Len())
	}
	got, _ := g.Location("D1")
	if got.Name != "Customer One" {
		t.Fatalf("name = %q", got.Name)
	}
	if len(neighborMap(t, g, "D1")) != 2 {
		t.Fatalf("upsert must keep edges")
	}
}

func TestAddRouteByCoordinates(t *testing.T) {
	g := NewLocationGraph(nil)
	_ = g.AddLocation(loc("A", 0, 0))
	_ = g.AddLocation(loc("B", 0, 1))

	km, err := g.AddRouteByCoordinates("A", "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := domain.HaversineKm(0, 0, 0, 1); km != want {
		t.Fatalf("km = %v, want %v", km, want)
	}
}

func TestNeighborsAreRestartable(t *testing.T) {
	g := scenarioGraph(t, nil)

	seq, _ := g.Neighbors("R1")
	first := []string{}
	for n := range seq {
		first = append(first, n)
	}
	second := []string{}
	for n := range seq {
		second = append(second, n)
	}

	if len(first) != 2 || len(second) != 2 || first[0] != second[0] || first[1] != second[1] {
		t.Fatalf("iterations differ: %v vs %v", first, second)
	}
	if first[0] != "D1" || first[1] != "D2" {
		t.Fatalf("neighbors should follow insertion order, got %v", first)
	}
}

func TestNeighborsApplyTraffic(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	traffic := NewTrafficModel().WithClock(func() time.Time { return now })
	g := scenarioGraph(t, traffic)

	if err := g.UpdateTraffic("D1", "R1", domain.TrafficHeavy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := neighborMap(t, g, "R1")["D1"]; got != 4 {
		t.Fatalf("weighted R1-D1 = %v, want 4", got)
	}

	e, _ := g.Edge("R1", "D1")
	if e.Traffic == nil || e.Traffic.Level != domain.TrafficHeavy {
		t.Fatalf("edge traffic = %+v", e.Traffic)
	}

	if err := g.UpdateTraffic("R1", "R1", domain.TrafficLight); err == nil {
		t.Fatalf("expected error for unknown edge")
	}
}

func TestUpdatePositionOnlyForVehicleOrigins(t *testing.T) {
	g := scenarioGraph(t, nil)
	v := loc("V1", 0, 0)
	v.Kind = domain.KindVehicleOrigin
	_ = g.AddLocation(v)

	if err := g.UpdatePosition("V1", domain.Coordinates{Lat: 1, Lon: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.UpdatePosition("D1", domain.Coordinates{Lat: 1, Lon: 1}); err == nil {
		t.Fatalf("customer locations must be immutable")
	}
}

func TestHeuristicScaleFollowsGraphChanges(t *testing.T) {
	g := scenarioGraph(t, nil)
	d1, _ := g.Location("D1")
	d2, _ := g.Location("D2")
	straight := d1.Coords.DistanceKm(d2.Coords)

	// D1-D2 has the lowest ratio of length to straight-line distance.
	if got, want := g.HeuristicScale(), 1/straight; !almostEqual(got, want) {
		t.Fatalf("scale = %v, want %v", got, want)
	}

	if err := g.AddRoute("D1", "D2", 0.5); err != nil {
		t.Fatalf("add route: %v", err)
	}
	if got, want := g.HeuristicScale(), 0.5/straight; !almostEqual(got, want) {
		t.Fatalf("scale after add route = %v, want %v", got, want)
	}

	v := loc("V1", 0, 0)
	v.Kind = domain.KindVehicleOrigin
	_ = g.AddLocation(v)
	if err := g.AddRoute("V1", "D1", 0.1); err != nil {
		t.Fatalf("add route: %v", err)
	}
	far := g.HeuristicScale()
	if far >= 0.5/straight {
		t.Fatalf("scale = %v, want below %v", far, 0.5/straight)
	}

	// Moving V1 next to D1 makes its edge admissible again.
	if err := g.UpdatePosition("V1", domain.Coordinates{Lat: 0, Lon: 0.9999}); err != nil {
		t.Fatalf("update position: %v", err)
	}
	if got, want := g.HeuristicScale(), 0.5/straight; !almostEqual(got, want) {
		t.Fatalf("scale after move = %v, want %v", got, want)
	}
}
