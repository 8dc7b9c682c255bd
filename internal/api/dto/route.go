package dto

import (
	"delivery-dispatch-service/internal/domain"
	"time"
)

type ShortestPathResponse struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Algorithm  string   `json:"algorithm"`
	Path       []string `json:"path"`
	DistanceKm float64  `json:"distance_km"`
}

type OptimizeStop struct {
	OrderID    string `json:"order_id"`
	LocationID string `json:"location_id"`
}

type OptimizeRouteRequest struct {
	Start         string         `json:"start"`
	VehicleID     string         `json:"vehicle_id"`
	Stops         []OptimizeStop `json:"stops"`
	DepartAt      *time.Time     `json:"depart_at"`
	ReturnToStart *bool          `json:"return_to_start"`
}

type StopResponse struct {
	OrderID              string    `json:"order_id"`
	LocationID           string    `json:"location_id"`
	CumulativeDistanceKm float64   `json:"cumulative_distance_km"`
	EstimatedArrival     time.Time `json:"estimated_arrival"`
}

type RouteResponse struct {
	VehicleID        string         `json:"vehicle_id,omitempty"`
	StartLocationID  string         `json:"start_location_id"`
	DepartAt         time.Time      `json:"depart_at"`
	TotalDistanceKm  float64        `json:"total_distance_km"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	ReturnToStart    bool           `json:"return_to_start"`
	Stops            []StopResponse `json:"stops"`
}

func FromRoute(r *domain.Route) RouteResponse {
	res := RouteResponse{
		VehicleID:        r.VehicleID,
		StartLocationID:  r.StartLocationID,
		DepartAt:         r.DepartAt,
		TotalDistanceKm:  r.TotalDistanceKm,
		EstimatedMinutes: r.EstimatedMinutes,
		ReturnToStart:    r.ReturnToStart,
		Stops:            make([]StopResponse, 0, len(r.Stops)),
	}
	for _, s := range r.Stops {
		res.Stops = append(res.Stops, StopResponse{
			OrderID:              s.OrderID,
			LocationID:           s.LocationID,
			CumulativeDistanceKm: s.CumulativeDistanceKm,
			EstimatedArrival:     s.EstimatedArrival,
		})
	}
	return res
}

type TrafficRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Level string `json:"level"`
}

type TrafficResponse struct {
	EdgeKey    string    `json:"edge_key"`
	Level      string    `json:"level"`
	Multiplier float64   `json:"multiplier"`
	ObservedAt time.Time `json:"observed_at"`
}

type UnassignedResponse struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type DispatchResponse struct {
	BatchID    string               `json:"batch_id,omitempty"`
	Routes     []RouteResponse      `json:"routes"`
	Unassigned []UnassignedResponse `json:"unassigned"`
}
