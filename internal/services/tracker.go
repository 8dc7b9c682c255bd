package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultRefreshInterval = 30 * time.Second

// Delivery event types published by the tracker.
const (
	EventDeliveryStarted  = "delivery.started"
	EventDeliveryStatus   = "delivery.status"
	EventDeliveryLocation = "delivery.location"
	EventDeliveryDelay    = "delivery.delay"
)

type TrackerOptions struct {
	// Period of the per-delivery refresh task; zero disables timers.
	RefreshInterval time.Duration
	Events          ports.EventPublisher
	Orders          ports.OrderRepository
	Now             func() time.Time
}

// Tracker runs the delivery status state machine for every dispatched order.
//
// Each active delivery owns a refresh task that follows the vehicle along
// its route and completes the delivery once its stop is reached. Terminal
// deliveries move to history and give their vehicle slot back to the fleet.
type Tracker struct {
	fleet    *Fleet
	interval time.Duration
	events   ports.EventPublisher
	orders   ports.OrderRepository
	now      func() time.Time

	mu      sync.Mutex
	active  map[string]*domain.DeliveryRecord
	history map[string]*domain.DeliveryRecord
	timers  map[string]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewTracker(fleet *Fleet, opts TrackerOptions) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		fleet:    fleet,
		interval: opts.RefreshInterval,
		events:   opts.Events,
		orders:   opts.Orders,
		now:      opts.Now,
		active:   make(map[string]*domain.DeliveryRecord),
		history:  make(map[string]*domain.DeliveryRecord),
		timers:   make(map[string]context.CancelFunc),
	}
}

// Start begins tracking orderID on the vehicle's current route.
func (t *Tracker) Start(ctx context.Context, orderID, vehicleID string) (domain.DeliveryRecord, error) {
	route, ok := t.fleet.Route(vehicleID)
	if !ok {
		return domain.DeliveryRecord{}, fmt.Errorf("start delivery %s: route for vehicle %s: %w", orderID, vehicleID, domain.ErrNotFound)
	}
	stop, ok := route.StopFor(orderID)
	if !ok {
		return domain.DeliveryRecord{}, fmt.Errorf("start delivery %s: not on route of vehicle %s: %w", orderID, vehicleID, domain.ErrNotFound)
	}

	estimated := int(math.Ceil(stop.EstimatedArrival.Sub(route.DepartAt).Minutes()))
	rec := domain.NewDeliveryRecord(orderID, vehicleID, route.StartLocationID, estimated, route.DepartAt)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, fmt.Errorf("start delivery %s: tracker stopped", orderID)
	}
	if _, dup := t.active[rec.DeliveryID]; dup {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, fmt.Errorf("start delivery %s: already tracked", rec.DeliveryID)
	}
	t.active[rec.DeliveryID] = rec
	delete(t.history, rec.DeliveryID)
	if t.interval > 0 {
		tctx, cancel := context.WithCancel(context.Background())
		t.timers[rec.DeliveryID] = cancel
		t.wg.Add(1)
		go t.refreshLoop(tctx, rec.DeliveryID)
	}
	snap := rec.Clone()
	t.mu.Unlock()

	t.publish(snap, EventDeliveryStarted, map[string]any{
		"order_id":          orderID,
		"vehicle_id":        vehicleID,
		"estimated_minutes": estimated,
	})
	return snap, nil
}

// Advance moves a delivery to next, enforcing the forward-only sequence.
func (t *Tracker) Advance(ctx context.Context, deliveryID string, next domain.DeliveryStatus) (domain.DeliveryRecord, error) {
	t.mu.Lock()
	rec, err := t.activeLocked(deliveryID)
	if err != nil {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, fmt.Errorf("advance delivery: %w", err)
	}
	if err := t.transitionLocked(rec, next); err != nil {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, err
	}
	snap := rec.Clone()
	t.mu.Unlock()

	t.afterTransition(ctx, snap)
	return snap, nil
}

// Cancel cancels a non-terminal delivery, stopping its refresh task and
// releasing the vehicle slot.
func (t *Tracker) Cancel(ctx context.Context, deliveryID string) (domain.DeliveryRecord, error) {
	return t.Advance(ctx, deliveryID, domain.StatusCancelled)
}

// RecordDelay appends a delay to an active delivery.
func (t *Tracker) RecordDelay(ctx context.Context, deliveryID string, minutes int, reason string) (domain.DeliveryRecord, error) {
	if minutes <= 0 {
		return domain.DeliveryRecord{}, fmt.Errorf("record delay %s: minutes must be > 0, got %d", deliveryID, minutes)
	}

	t.mu.Lock()
	rec, err := t.activeLocked(deliveryID)
	if err != nil {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, fmt.Errorf("record delay: %w", err)
	}
	rec.RecordDelay(minutes, strings.TrimSpace(reason), t.now())
	snap := rec.Clone()
	t.mu.Unlock()

	t.publish(snap, EventDeliveryDelay, map[string]any{"minutes": minutes, "reason": reason, "eta": snap.ETA()})
	return snap, nil
}

// Refresh recomputes the vehicle position of a delivery and completes it
// when the vehicle has reached the delivery's stop while delivering.
func (t *Tracker) Refresh(ctx context.Context, deliveryID string) (domain.DeliveryRecord, error) {
	now := t.now()

	t.mu.Lock()
	rec, err := t.activeLocked(deliveryID)
	if err != nil {
		t.mu.Unlock()
		return domain.DeliveryRecord{}, fmt.Errorf("refresh delivery: %w", err)
	}

	route, ok := t.fleet.Route(rec.VehicleID)
	if !ok {
		snap := rec.Clone()
		t.mu.Unlock()
		return snap, nil
	}

	moved := false
	if pos := route.PositionAt(now); pos != rec.CurrentLocationID {
		rec.CurrentLocationID = pos
		rec.UpdatedAt = now
		moved = true
	}

	completed := false
	if stop, ok := route.StopFor(rec.OrderID); ok && rec.Status == domain.StatusDelivering && !now.Before(stop.EstimatedArrival) {
		rec.CurrentLocationID = stop.LocationID
		if err := t.transitionLocked(rec, domain.StatusDelivered); err != nil {
			t.mu.Unlock()
			return domain.DeliveryRecord{}, err
		}
		completed = true
	}
	snap := rec.Clone()
	t.mu.Unlock()

	if moved {
		t.publish(snap, EventDeliveryLocation, map[string]any{"location_id": snap.CurrentLocationID})
	}
	if completed {
		t.afterTransition(ctx, snap)
	}
	return snap, nil
}

// Get looks a delivery up among active deliveries, then history.
func (t *Tracker) Get(deliveryID string) (domain.DeliveryRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.active[deliveryID]; ok {
		return rec.Clone(), nil
	}
	if rec, ok := t.history[deliveryID]; ok {
		return rec.Clone(), nil
	}
	return domain.DeliveryRecord{}, fmt.Errorf("delivery %s: %w", deliveryID, domain.ErrNotFound)
}

// Active lists active deliveries ordered by id.
func (t *Tracker) Active() []domain.DeliveryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.DeliveryRecord, 0, len(t.active))
	for _, rec := range t.active {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b domain.DeliveryRecord) int { return strings.Compare(a.DeliveryID, b.DeliveryID) })
	return out
}

// Progress reports the delivery's progress percentage at the current time.
func (t *Tracker) Progress(deliveryID string) (float64, error) {
	rec, err := t.Get(deliveryID)
	if err != nil {
		return 0, err
	}
	if rec.Status == domain.StatusDelivered {
		return 100, nil
	}
	return rec.ProgressPercent(t.now()), nil
}

// Stop cancels every refresh task and waits for them to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, cancel := range t.timers {
		cancel()
		delete(t.timers, id)
	}
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Tracker) refreshLoop(ctx context.Context, deliveryID string) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Refresh(ctx, deliveryID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return
				}
				obs.L().Warn("refresh delivery failed", zap.String("delivery_id", deliveryID), zap.Error(err))
			}
		}
	}
}

func (t *Tracker) activeLocked(deliveryID string) (*domain.DeliveryRecord, error) {
	if rec, ok := t.active[deliveryID]; ok {
		return rec, nil
	}
	if _, ok := t.history[deliveryID]; ok {
		return nil, fmt.Errorf("delivery %s is archived: %w", deliveryID, domain.ErrInvalidTransition)
	}
	return nil, fmt.Errorf("delivery %s: %w", deliveryID, domain.ErrNotFound)
}

func (t *Tracker) transitionLocked(rec *domain.DeliveryRecord, next domain.DeliveryStatus) error {
	if err := rec.Advance(next, t.now()); err != nil {
		return err
	}
	obs.DeliveryTransitions.WithLabelValues(string(next)).Inc()

	if !next.Terminal() {
		return nil
	}

	delete(t.active, rec.DeliveryID)
	t.history[rec.DeliveryID] = rec
	if cancel, ok := t.timers[rec.DeliveryID]; ok {
		cancel()
		delete(t.timers, rec.DeliveryID)
	}

	if next == domain.StatusDelivered {
		t.fleet.MoveTo(rec.VehicleID, rec.CurrentLocationID)
	}
	t.fleet.Release(rec.VehicleID, rec.OrderID)
	return nil
}

func (t *Tracker) afterTransition(ctx context.Context, rec domain.DeliveryRecord) {
	t.publish(rec, EventDeliveryStatus, map[string]any{"status": string(rec.Status)})

	if t.orders == nil {
		return
	}
	// The refresh task's context is cancelled by the terminal transition itself.
	if err := t.orders.UpdateOrderStatus(context.WithoutCancel(ctx), rec.OrderID, rec.Status); err != nil {
		obs.L().Warn("persist order status failed",
			zap.String("order_id", rec.OrderID),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
	}
}

func (t *Tracker) publish(rec domain.DeliveryRecord, typ string, data map[string]any) {
	if t.events == nil {
		return
	}
	t.events.Publish(rec.DeliveryID, ports.DeliveryEvent{
		Type:       typ,
		DeliveryID: rec.DeliveryID,
		At:         t.now(),
		Data:       data,
	})
}
