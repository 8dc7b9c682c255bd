package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// Up to this many distinct destinations are ordered exhaustively.
	DefaultPermutationThreshold = 8

	prepMinutes    = 15
	speedKmh       = 30
	perStopMinutes = 5
)

type OrderStrategy int

const (
	StrategyExhaustive OrderStrategy = iota
	StrategyNearestNeighbor
)

func (s OrderStrategy) String() string {
	if s == StrategyExhaustive {
		return "exhaustive"
	}
	return "nearest_neighbor"
}

var orderers = [...]func(start string, destinations []string, dist distanceFunc, onTime func([]string) bool) ([]string, error){
	StrategyExhaustive:      exhaustiveOrder,
	StrategyNearestNeighbor: nearestNeighborOrder,
}

// One order to be delivered at a location. A non-zero Latest is the
// arrival bound the route should keep.
type StopRequest struct {
	OrderID    string
	LocationID string
	Latest     time.Time
}

// RouteOptimizer orders the stops of a single vehicle.
//
// At or below PermutationThreshold distinct destinations every visiting
// order is scored by round-trip distance and the cheapest one that keeps
// every stop's Latest bound wins, or the cheapest overall when none does.
// Above it a nearest-neighbor walk is used, which is fast but not optimal
// and ignores arrival bounds.
type RouteOptimizer struct {
	Distances            ports.DistanceProvider
	PermutationThreshold int
	// Include the leg back to the start in TotalDistanceKm and the estimate.
	ReturnToStart bool
}

func NewRouteOptimizer(distances ports.DistanceProvider) *RouteOptimizer {
	return &RouteOptimizer{
		Distances:            distances,
		PermutationThreshold: DefaultPermutationThreshold,
		ReturnToStart:        true,
	}
}

// StrategyFor picks the ordering strategy for n distinct destinations.
func (o *RouteOptimizer) StrategyFor(n int) OrderStrategy {
	if n <= o.PermutationThreshold {
		return StrategyExhaustive
	}
	return StrategyNearestNeighbor
}

// Optimize plans the route of vehicleID from start through every stop.
// Stops sharing a location are served on the same visit, in request order.
func (o *RouteOptimizer) Optimize(
	ctx context.Context,
	vehicleID string,
	start string,
	stops []StopRequest,
	departAt time.Time,
) (*domain.Route, error) {
	if strings.TrimSpace(start) == "" {
		return nil, errors.New("optimize route: start must be non-empty")
	}

	route := &domain.Route{
		VehicleID:       vehicleID,
		StartLocationID: start,
		DepartAt:        departAt,
		Stops:           []domain.Stop{},
		ReturnToStart:   o.ReturnToStart,
	}
	if len(stops) == 0 {
		return route, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}

	byLocation := make(map[string][]string)
	latest := make(map[string]time.Time)
	destinations := make([]string, 0, len(stops))
	for _, s := range stops {
		if strings.TrimSpace(s.LocationID) == "" {
			return nil, fmt.Errorf("optimize route: order %s has empty location", s.OrderID)
		}
		if _, seen := byLocation[s.LocationID]; !seen {
			destinations = append(destinations, s.LocationID)
		}
		byLocation[s.LocationID] = append(byLocation[s.LocationID], s.OrderID)
		if !s.Latest.IsZero() {
			latest[s.OrderID] = s.Latest
		}
	}

	dist, err := o.distanceLookup(ctx, start, destinations)
	if err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}
	for _, d := range destinations {
		if _, ok := dist(start, d); !ok {
			return nil, fmt.Errorf("optimize route: %s -> %s: %w", start, d, domain.ErrUnreachable)
		}
	}

	var onTime func([]string) bool
	if len(latest) > 0 {
		onTime = func(order []string) bool {
			planned, _ := planStops(start, order, byLocation, dist, departAt)
			for _, st := range planned {
				if l, ok := latest[st.OrderID]; ok && st.EstimatedArrival.After(l) {
					return false
				}
			}
			return true
		}
	}

	strategy := o.StrategyFor(len(destinations))
	order, err := orderers[strategy](start, destinations, dist, onTime)
	if err != nil {
		return nil, fmt.Errorf("optimize route: %s: %v: %w", strategy, err, domain.ErrUnreachable)
	}

	var cumulative float64
	route.Stops, cumulative = planStops(start, order, byLocation, dist, departAt)
	current := start
	if len(order) > 0 {
		current = order[len(order)-1]
	}

	// Optionally includes return leg to the start for total route metrics.
	total := cumulative
	if o.ReturnToStart {
		back, ok := dist(current, start)
		if !ok {
			return nil, fmt.Errorf("optimize route: return leg %s -> %s: %w", current, start, domain.ErrUnreachable)
		}
		total += back
	}

	route.TotalDistanceKm = total
	route.EstimatedMinutes = EstimateMinutes(total, len(route.Stops), departAt)
	return route, nil
}

// planStops lays out the stops of a visiting order with cumulative
// distances and arrival estimates, and returns the distance travelled.
// Orders sharing a location are served in request order on one visit.
func planStops(start string, order []string, byLocation map[string][]string, dist distanceFunc, departAt time.Time) ([]domain.Stop, float64) {
	delay := TrafficDelayMinutes(departAt.Hour())
	stops := make([]domain.Stop, 0, len(order))
	cumulative := 0.0
	current := start
	k := 0
	for _, locID := range order {
		km, _ := dist(current, locID)
		cumulative += km

		for _, orderID := range byLocation[locID] {
			minutes := prepMinutes + cumulative/speedKmh*60 + float64(perStopMinutes*k+delay)
			stops = append(stops, domain.Stop{
				OrderID:              orderID,
				LocationID:           locID,
				CumulativeDistanceKm: cumulative,
				EstimatedArrival:     departAt.Add(time.Duration(math.Round(minutes*60)) * time.Second),
			})
			k++
		}
		current = locID
	}
	return stops, cumulative
}

// distanceLookup fetches every pairwise distance among start and
// destinations, preferring batched lookups when the provider supports them.
func (o *RouteOptimizer) distanceLookup(ctx context.Context, start string, destinations []string) (distanceFunc, error) {
	nodes := append([]string{start}, destinations...)
	rows := make(map[string]map[string]ports.DistanceResult, len(nodes))

	for _, origin := range nodes {
		targets := make([]string, 0, len(nodes)-1)
		for _, n := range nodes {
			if n != origin {
				targets = append(targets, n)
			}
		}

		if mp, ok := o.Distances.(ports.DistanceMatrixProvider); ok {
			r, err := mp.GetDistances(ctx, origin, targets)
			if err != nil {
				return nil, fmt.Errorf("get distances matrix from %q: %w", origin, err)
			}
			rows[origin] = r
			continue
		}

		r := make(map[string]ports.DistanceResult, len(targets))
		for _, t := range targets {
			res, err := o.Distances.GetDistance(ctx, origin, t)
			if errors.Is(err, domain.ErrUnreachable) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get distance: from %q to %q: %w", origin, t, err)
			}
			r[t] = res
		}
		rows[origin] = r
	}

	return func(from, to string) (float64, bool) {
		if from == to {
			return 0, true
		}
		r, ok := rows[from][to]
		if !ok || math.IsInf(r.DistanceKm, 1) {
			return 0, false
		}
		return r.DistanceKm, true
	}, nil
}

// TrafficDelayMinutes is the time-of-day congestion allowance.
func TrafficDelayMinutes(hour int) int {
	switch {
	case hour >= 8 && hour <= 10, hour >= 17 && hour <= 19:
		return 15
	case hour >= 11 && hour <= 16:
		return 10
	default:
		return 5
	}
}

// EstimateMinutes is preparation time, travel at 30 km/h, a fixed service
// time per stop and the congestion allowance for the departure hour.
func EstimateMinutes(distanceKm float64, stops int, at time.Time) int {
	if stops == 0 && distanceKm == 0 {
		return 0
	}
	m := prepMinutes + distanceKm/speedKmh*60 + float64(perStopMinutes*stops+TrafficDelayMinutes(at.Hour()))
	return int(math.Ceil(m - 1e-9))
}
