package services

import (
	"fmt"
	"math"
	"slices"
)

// distanceFunc returns the weighted distance between two nodes, or false
// when the destination is unreachable from the origin.
type distanceFunc func(from, to string) (float64, bool)

// nearestNeighborOrder visits destinations using a greedy nearest-neighbor
// walk from start.
//
// The algorithm minimizes immediate travel distance at each step and does
// not attempt global optimization. Ties go to the smaller location id.
func nearestNeighborOrder(start string, destinations []string, dist distanceFunc, _ func([]string) bool) ([]string, error) {
	remaining := make(map[string]struct{}, len(destinations))
	for _, d := range destinations {
		remaining[d] = struct{}{}
	}

	order := make([]string, 0, len(destinations))
	current := start

	for len(remaining) > 0 {
		var best string
		bestKm := math.Inf(1)

		// Select next stop by minimum travel distance (greedy step).
		for d := range remaining {
			km, ok := dist(current, d)
			if !ok {
				continue
			}
			// Tie-breaker ensures deterministic ordering when distances are equal.
			if km < bestKm || (km == bestKm && (best == "" || d < best)) {
				bestKm = km
				best = d
			}
		}

		if best == "" {
			return nil, fmt.Errorf("nearest neighbor: no reachable destination from %q", current)
		}

		order = append(order, best)
		delete(remaining, best)
		current = best
	}

	return order, nil
}

// exhaustiveOrder scores every permutation of destinations (taken in
// lexicographic order) by round-trip distance from start and returns the
// cheapest. When onTime is set the cheapest permutation it accepts is
// preferred. Among equal costs the first permutation found wins.
func exhaustiveOrder(start string, destinations []string, dist distanceFunc, onTime func([]string) bool) ([]string, error) {
	perm := append([]string(nil), destinations...)
	slices.Sort(perm)

	var best, bestOnTime []string
	bestKm, bestOnTimeKm := math.Inf(1), math.Inf(1)

	for {
		if km, ok := roundTrip(start, perm, dist); ok {
			if km < bestKm && !almostEqual(km, bestKm) {
				bestKm = km
				best = append(best[:0], perm...)
			}
			if onTime != nil && km < bestOnTimeKm && !almostEqual(km, bestOnTimeKm) && onTime(perm) {
				bestOnTimeKm = km
				bestOnTime = append(bestOnTime[:0], perm...)
			}
		}
		if !nextPermutation(perm) {
			break
		}
	}

	if bestOnTime != nil {
		return bestOnTime, nil
	}
	if best == nil {
		return nil, fmt.Errorf("exhaustive order: no complete tour from %q", start)
	}
	return best, nil
}

func roundTrip(start string, order []string, dist distanceFunc) (float64, bool) {
	total := 0.0
	current := start
	for _, d := range order {
		km, ok := dist(current, d)
		if !ok {
			return 0, false
		}
		total += km
		current = d
	}
	back, ok := dist(current, start)
	if !ok {
		return 0, false
	}
	return total + back, true
}

// nextPermutation rearranges p into its lexicographic successor and reports
// whether one existed.
func nextPermutation(p []string) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	for l, r := i+1, len(p)-1; l < r; l, r = l+1, r-1 {
		p[l], p[r] = p[r], p[l]
	}
	return true
}
