package dto

import (
	"delivery-dispatch-service/internal/domain"
	"time"
)

type DelayResponse struct {
	At      time.Time `json:"at"`
	Minutes int       `json:"minutes"`
	Reason  string    `json:"reason,omitempty"`
}

type DeliveryResponse struct {
	DeliveryID        string          `json:"delivery_id"`
	OrderID           string          `json:"order_id"`
	VehicleID         string          `json:"vehicle_id"`
	Status            string          `json:"status"`
	CurrentLocationID string          `json:"current_location_id"`
	StartedAt         time.Time       `json:"started_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	EstimatedMinutes  int             `json:"estimated_minutes"`
	ETA               time.Time       `json:"eta"`
	ProgressPercent   float64         `json:"progress_percent"`
	Delays            []DelayResponse `json:"delays"`
}

func FromDelivery(d domain.DeliveryRecord, progress float64) DeliveryResponse {
	res := DeliveryResponse{
		DeliveryID:        d.DeliveryID,
		OrderID:           d.OrderID,
		VehicleID:         d.VehicleID,
		Status:            string(d.Status),
		CurrentLocationID: d.CurrentLocationID,
		StartedAt:         d.StartedAt,
		UpdatedAt:         d.UpdatedAt,
		CompletedAt:       d.CompletedAt,
		EstimatedMinutes:  d.EstimatedMinutes,
		ETA:               d.ETA(),
		ProgressPercent:   progress,
		Delays:            make([]DelayResponse, 0, len(d.Delays)),
	}
	for _, dl := range d.Delays {
		res.Delays = append(res.Delays, DelayResponse{At: dl.At, Minutes: dl.Minutes, Reason: dl.Reason})
	}
	return res
}

type AdvanceRequest struct {
	Status string `json:"status"`
}

type DelayRequest struct {
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

type MenuItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Frequency int    `json:"frequency"`
}

type MenuSearchResponse struct {
	Query       string             `json:"query"`
	Suggestions []MenuItemResponse `json:"suggestions"`
}
