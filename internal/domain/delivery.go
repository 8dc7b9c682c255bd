package domain

import (
	"fmt"
	"strings"
	"time"
)

type DeliveryStatus string

const (
	StatusPending    DeliveryStatus = "pending"
	StatusConfirmed  DeliveryStatus = "confirmed"
	StatusPreparing  DeliveryStatus = "preparing"
	StatusDelivering DeliveryStatus = "delivering"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusCancelled  DeliveryStatus = "cancelled"
)

// Forward successor of each non-terminal status.
var nextStatus = map[DeliveryStatus]DeliveryStatus{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusPreparing,
	StatusPreparing:  StatusDelivering,
	StatusDelivering: StatusDelivered,
}

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusDelivering, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("parse delivery status: unsupported status %q", s)
	}
}

func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanAdvanceTo reports whether next is a legal transition from s.
// Cancellation is legal from every non-terminal status.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return nextStatus[s] == next
}

// CustomerCancellable reports whether a customer may still cancel the order
// themselves. Operators can cancel any non-terminal delivery.
func CustomerCancellable(s DeliveryStatus) bool {
	return s == StatusPending || s == StatusConfirmed
}

// Delay reported against a delivery.
type Delay struct {
	At      time.Time
	Minutes int
	Reason  string
}

// Tracking state for one order on one vehicle. The route is looked up by
// VehicleID; the record holds no pointers into other aggregates.
type DeliveryRecord struct {
	DeliveryID        string
	OrderID           string
	VehicleID         string
	Status            DeliveryStatus
	CurrentLocationID string
	StartedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	EstimatedMinutes  int
	Delays            []Delay
}

// DeliveryIDFor derives the tracking id of an order.
func DeliveryIDFor(orderID string) string { return "DEL-" + orderID }

func NewDeliveryRecord(orderID, vehicleID, locationID string, estimatedMinutes int, now time.Time) *DeliveryRecord {
	return &DeliveryRecord{
		DeliveryID:        DeliveryIDFor(orderID),
		OrderID:           orderID,
		VehicleID:         vehicleID,
		Status:            StatusPending,
		CurrentLocationID: locationID,
		StartedAt:         now,
		UpdatedAt:         now,
		EstimatedMinutes:  estimatedMinutes,
	}
}

// Advance moves the record to next or fails with ErrInvalidTransition.
func (d *DeliveryRecord) Advance(next DeliveryStatus, now time.Time) error {
	if !d.Status.CanAdvanceTo(next) {
		return fmt.Errorf("advance %s: %s -> %s: %w", d.DeliveryID, d.Status, next, ErrInvalidTransition)
	}
	d.Status = next
	d.UpdatedAt = now
	if next.Terminal() {
		t := now
		d.CompletedAt = &t
	}
	return nil
}

// RecordDelay appends a delay. Status is never changed.
func (d *DeliveryRecord) RecordDelay(minutes int, reason string, now time.Time) {
	d.Delays = append(d.Delays, Delay{At: now, Minutes: minutes, Reason: reason})
	d.UpdatedAt = now
}

// TotalDelayMinutes sums all recorded delays.
func (d *DeliveryRecord) TotalDelayMinutes() int {
	total := 0
	for _, dl := range d.Delays {
		total += dl.Minutes
	}
	return total
}

// ProgressPercent is elapsed/estimated time as a percentage, clamped to [0, 100].
func (d *DeliveryRecord) ProgressPercent(now time.Time) float64 {
	if d.EstimatedMinutes <= 0 {
		return 100
	}
	elapsed := now.Sub(d.StartedAt).Minutes()
	p := 100 * elapsed / float64(d.EstimatedMinutes)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ETA is the start time plus the estimate and all recorded delays.
func (d *DeliveryRecord) ETA() time.Time {
	return d.StartedAt.Add(time.Duration(d.EstimatedMinutes+d.TotalDelayMinutes()) * time.Minute)
}

// Clone returns a copy that shares no slices or pointers with d.
func (d *DeliveryRecord) Clone() DeliveryRecord {
	cp := *d
	cp.Delays = append([]Delay(nil), d.Delays...)
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
