package services

import (
	"delivery-dispatch-service/internal/domain"
	"fmt"
	"iter"
	"math"
	"strings"
	"sync"
)

// LocationGraph owns the delivery network: locations and the bidirectional
// edges between them. Mutations are serialized; reads see a consistent
// snapshot of a single location's adjacency.
type LocationGraph struct {
	mu        sync.RWMutex
	locations map[string]domain.Location
	order     []string
	// Neighbor ids per location, in edge insertion order.
	adj     map[string][]string
	edges   map[string]domain.Edge
	traffic *TrafficModel

	// Cached HeuristicScale; cleared whenever coordinates or edges change.
	scale      float64
	scaleValid bool
}

// NewLocationGraph builds an empty graph. A nil traffic model means free-flow weights.
func NewLocationGraph(traffic *TrafficModel) *LocationGraph {
	return &LocationGraph{
		locations: make(map[string]domain.Location),
		adj:       make(map[string][]string),
		edges:     make(map[string]domain.Edge),
		traffic:   traffic,
	}
}

func (g *LocationGraph) Traffic() *TrafficModel { return g.traffic }

// AddLocation inserts or replaces a location. Existing edges are kept.
func (g *LocationGraph) AddLocation(loc domain.Location) error {
	loc.ID = strings.TrimSpace(loc.ID)
	if loc.ID == "" {
		return fmt.Errorf("add location: id must be non-empty")
	}
	if loc.Coords.Lat < -90 || loc.Coords.Lat > 90 || loc.Coords.Lon < -180 || loc.Coords.Lon > 180 {
		return fmt.Errorf("add location %s: coordinates out of range (%f, %f)", loc.ID, loc.Coords.Lat, loc.Coords.Lon)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.locations[loc.ID]; !ok {
		g.order = append(g.order, loc.ID)
	}
	g.locations[loc.ID] = loc
	g.scaleValid = false
	return nil
}

// UpdatePosition moves a vehicle-origin location. Other kinds are immutable.
func (g *LocationGraph) UpdatePosition(id string, coords domain.Coordinates) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	loc, ok := g.locations[id]
	if !ok {
		return fmt.Errorf("update position %q: %w", id, domain.ErrUnknownLocation)
	}
	if loc.Kind != domain.KindVehicleOrigin {
		return fmt.Errorf("update position %q: location kind %s is immutable", id, loc.Kind)
	}
	loc.Coords = coords
	g.locations[id] = loc
	g.scaleValid = false
	return nil
}

// AddRoute creates or overwrites the edge between a and b.
func (g *LocationGraph) AddRoute(a, b string, km float64) error {
	if km < 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		return fmt.Errorf("add route %s-%s: %v km: %w", a, b, km, domain.ErrInvalidDistance)
	}
	if a == b {
		return fmt.Errorf("add route %s-%s: self loops are not allowed: %w", a, b, domain.ErrInvalidDistance)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{a, b} {
		if _, ok := g.locations[id]; !ok {
			return fmt.Errorf("add route %s-%s: %q: %w", a, b, id, domain.ErrUnknownLocation)
		}
	}

	key := domain.EdgeKey(a, b)
	if _, exists := g.edges[key]; !exists {
		g.adj[a] = append(g.adj[a], b)
		g.adj[b] = append(g.adj[b], a)
	}

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	g.edges[key] = domain.Edge{A: lo, B: hi, BaseDistanceKm: km}
	g.scaleValid = false
	return nil
}

// AddRouteByCoordinates connects a and b with their haversine distance.
func (g *LocationGraph) AddRouteByCoordinates(a, b string) (float64, error) {
	g.mu.RLock()
	la, okA := g.locations[a]
	lb, okB := g.locations[b]
	g.mu.RUnlock()

	if !okA {
		return 0, fmt.Errorf("add route %s-%s: %q: %w", a, b, a, domain.ErrUnknownLocation)
	}
	if !okB {
		return 0, fmt.Errorf("add route %s-%s: %q: %w", a, b, b, domain.ErrUnknownLocation)
	}

	km := la.Coords.DistanceKm(lb.Coords)
	if err := g.AddRoute(a, b, km); err != nil {
		return 0, err
	}
	return km, nil
}

// UpdateTraffic records a congestion level on an existing edge.
func (g *LocationGraph) UpdateTraffic(a, b string, level domain.TrafficLevel) error {
	if g.traffic == nil {
		return fmt.Errorf("update traffic %s-%s: graph has no traffic model", a, b)
	}

	key := domain.EdgeKey(a, b)
	g.mu.RLock()
	_, ok := g.edges[key]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update traffic %s-%s: no such edge: %w", a, b, domain.ErrUnknownLocation)
	}

	g.traffic.UpdateTraffic(key, level)
	return nil
}

// Distance is the haversine distance in km between two coordinates.
func (g *LocationGraph) Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return domain.HaversineKm(lat1, lon1, lat2, lon2)
}

// Neighbors returns a restartable sequence of (neighborId, weightedDistance)
// pairs. Adjacency is captured when Neighbors is called; weights reflect
// traffic at iteration time.
func (g *LocationGraph) Neighbors(id string) (iter.Seq2[string, float64], error) {
	g.mu.RLock()
	if _, ok := g.locations[id]; !ok {
		g.mu.RUnlock()
		return nil, fmt.Errorf("neighbors %q: %w", id, domain.ErrUnknownLocation)
	}
	ids := append([]string(nil), g.adj[id]...)
	bases := make([]float64, len(ids))
	for i, n := range ids {
		bases[i] = g.edges[domain.EdgeKey(id, n)].BaseDistanceKm
	}
	g.mu.RUnlock()

	return func(yield func(string, float64) bool) {
		for i, n := range ids {
			if !yield(n, g.traffic.WeightedDistance(domain.EdgeKey(id, n), bases[i])) {
				return
			}
		}
	}, nil
}

func (g *LocationGraph) Location(id string) (domain.Location, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	loc, ok := g.locations[id]
	return loc, ok
}

// Locations returns all locations in insertion order.
func (g *LocationGraph) Locations() []domain.Location {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Location, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.locations[id])
	}
	return out
}

// Edge returns the edge between a and b with its latest traffic reading attached.
func (g *LocationGraph) Edge(a, b string) (domain.Edge, bool) {
	key := domain.EdgeKey(a, b)

	g.mu.RLock()
	e, ok := g.edges[key]
	g.mu.RUnlock()
	if !ok {
		return domain.Edge{}, false
	}

	if g.traffic != nil {
		if o, seen := g.traffic.Observation(key); seen {
			e.Traffic = &o
		}
	}
	return e, true
}

// Edges returns every edge once.
func (g *LocationGraph) Edges() []domain.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Edge, 0, len(g.edges))
	for _, id := range g.order {
		for _, n := range g.adj[id] {
			if id < n {
				out = append(out, g.edges[domain.EdgeKey(id, n)])
			}
		}
	}
	return out
}

// HeuristicScale is the largest factor s such that s*haversine(a, b) never
// exceeds the base length of any edge (a, b), capped at 1. Scaling the
// straight-line distance by s keeps it admissible even when edge lengths
// are shorter than the great-circle distance between their endpoints.
func (g *LocationGraph) HeuristicScale() float64 {
	g.mu.RLock()
	if g.scaleValid {
		scale := g.scale
		g.mu.RUnlock()
		return scale
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.scaleValid {
		g.scale = g.computeScaleLocked()
		g.scaleValid = true
	}
	return g.scale
}

func (g *LocationGraph) computeScaleLocked() float64 {
	scale := 1.0
	for _, e := range g.edges {
		straight := g.locations[e.A].Coords.DistanceKm(g.locations[e.B].Coords)
		if straight <= 0 {
			continue
		}
		if r := e.BaseDistanceKm / straight; r < scale {
			scale = r
		}
	}
	return scale
}

func (g *LocationGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.locations)
}
