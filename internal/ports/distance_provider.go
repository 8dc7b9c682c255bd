package ports

import "context"

// Weighted travel distance between two locations and the path realising it.
type DistanceResult struct {
	DistanceKm float64
	Path       []string
}

// Contract for retrieving travel distance between locations.
type DistanceProvider interface {
	// Return weighted travel distance between two locations.
	GetDistance(ctx context.Context, origin string, destination string) (DistanceResult, error)
}
