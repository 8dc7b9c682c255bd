package domain

import "time"

// Represents a single stop in a delivery route: arriving at the order's
// delivery location at a computed time.
type Stop struct {
	OrderID              string
	LocationID           string
	CumulativeDistanceKm float64
	EstimatedArrival     time.Time
}

// Represents the planned delivery route for a single vehicle.
// A Route is the output of the route optimizer and is recomputed wholesale
// for every dispatch batch. It contains no side effects.
type Route struct {
	VehicleID        string
	StartLocationID  string
	DepartAt         time.Time
	Stops            []Stop
	TotalDistanceKm  float64
	EstimatedMinutes int
	ReturnToStart    bool
}

// StopFor returns the stop serving orderID.
func (r *Route) StopFor(orderID string) (Stop, bool) {
	for _, s := range r.Stops {
		if s.OrderID == orderID {
			return s, true
		}
	}
	return Stop{}, false
}

// PositionAt returns the location the vehicle has most recently reached at t.
func (r *Route) PositionAt(t time.Time) string {
	pos := r.StartLocationID
	for _, s := range r.Stops {
		if s.EstimatedArrival.After(t) {
			break
		}
		pos = s.LocationID
	}
	return pos
}
