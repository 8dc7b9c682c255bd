package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

const DefaultBatchSize = 20

// Dispatcher drives the order lifecycle from intake to tracking: orders are
// queued by priority, pulled in batches, assigned to vehicles and handed to
// the tracker.
type Dispatcher struct {
	Scheduler *OrderScheduler
	Fleet     *Fleet
	Assigner  *DispatchAssigner
	Tracker   *Tracker
	Cache     *RecentOrderCache
	Menu      *MenuSearchIndex
	// Optional persistence of accepted orders and batch routes.
	Orders    ports.OrderRepository
	Routes    ports.RouteStore
	BatchSize int
	Now       func() time.Time
}

// Submit validates and enqueues an order, returning its priority. The
// order is also cached and its items counted as menu selections.
func (d *Dispatcher) Submit(ctx context.Context, o domain.Order) (int, error) {
	if err := o.Validate(); err != nil {
		return 0, fmt.Errorf("submit order: %w", err)
	}
	if o.Status == "" {
		o.Status = domain.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = d.now()
	}
	if d.Orders != nil {
		if err := d.Orders.SaveOrder(ctx, o); err != nil {
			return 0, fmt.Errorf("submit order %s: %w", o.ID, err)
		}
	}

	p := d.Scheduler.Enqueue(o)
	if d.Cache != nil {
		d.Cache.Put(ctx, o)
	}
	if d.Menu != nil {
		for _, it := range o.Items {
			if !d.Menu.RecordSelection(it.ID) && it.Name != "" {
				d.Menu.Insert(ports.MenuItem{ID: it.ID, Name: it.Name, Frequency: 1})
			}
		}
	}
	return p, nil
}

// CancelOrder cancels an order whether it is still queued, held by a batch
// in progress, or already tracked.
func (d *Dispatcher) CancelOrder(ctx context.Context, orderID string) error {
	if d.Scheduler.Remove(orderID) {
		if d.Orders != nil {
			if err := d.Orders.UpdateOrderStatus(ctx, orderID, domain.StatusCancelled); err != nil {
				return fmt.Errorf("cancel order %s: %w", orderID, err)
			}
		}
		if d.Cache != nil {
			if o, err := d.Cache.Get(orderID); err == nil {
				o.Status = domain.StatusCancelled
				d.Cache.Put(ctx, o)
			}
		}
		return nil
	}

	if _, err := d.Tracker.Cancel(ctx, domain.DeliveryIDFor(orderID)); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// RunBatch dispatches up to BatchSize queued orders onto available vehicles.
// Vehicles already en route keep their undelivered stops and take new
// orders only if those stops stay on time. Orders that cannot be placed go
// back to the queue for the next batch.
func (d *Dispatcher) RunBatch(ctx context.Context) (_ *DispatchResult, err error) {
	defer obs.Time(ctx, "dispatch.RunBatch")(&err)

	orders := d.Scheduler.DequeueBatch(d.batchSize())
	if len(orders) == 0 {
		return &DispatchResult{Routes: map[string]*domain.Route{}, Assignments: map[string][]string{}}, nil
	}
	obs.DispatchBatches.Inc()

	vehicles := d.Fleet.Available()
	carried := make(map[string][]StopRequest, len(vehicles))
	for _, v := range vehicles {
		for _, st := range d.Fleet.PendingStops(v.ID) {
			carried[v.ID] = append(carried[v.ID], StopRequest{
				OrderID:    st.OrderID,
				LocationID: st.LocationID,
				Latest:     d.latestFor(st.OrderID),
			})
		}
	}

	res, err := d.Assigner.AssignCarrying(ctx, orders, vehicles, carried, d.now())
	if err != nil {
		for _, o := range orders {
			_ = d.Scheduler.Requeue(o.ID)
		}
		return nil, fmt.Errorf("run batch: %w", err)
	}

	inBatch := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		inBatch[o.ID] = struct{}{}
	}

	vehicleIDs := make([]string, 0, len(res.Assignments))
	for vid := range res.Assignments {
		vehicleIDs = append(vehicleIDs, vid)
	}
	slices.Sort(vehicleIDs)

	routes := make([]*domain.Route, 0, len(vehicleIDs))
	for _, vid := range vehicleIDs {
		var added, withdrawn []string
		for _, id := range res.Assignments[vid] {
			if _, ok := inBatch[id]; !ok {
				continue
			}
			if d.Scheduler.Withdrawn(id) {
				withdrawn = append(withdrawn, id)
			} else {
				added = append(added, id)
			}
		}
		route := res.Routes[vid]
		if len(withdrawn) > 0 {
			for _, id := range withdrawn {
				d.Scheduler.Ack(id)
			}
			route.Stops = slices.DeleteFunc(route.Stops, func(st domain.Stop) bool {
				return slices.Contains(withdrawn, st.OrderID)
			})
			res.Assignments[vid] = slices.DeleteFunc(res.Assignments[vid], func(id string) bool {
				return slices.Contains(withdrawn, id)
			})
			obs.L().Info("skipped orders cancelled during dispatch",
				zap.String("vehicle_id", vid), zap.Strings("order_ids", withdrawn))
			if len(route.Stops) == 0 {
				delete(res.Routes, vid)
				delete(res.Assignments, vid)
				continue
			}
		}

		if err := d.Fleet.Commit(vid, added, route); err != nil {
			obs.L().Error("commit vehicle failed", zap.String("vehicle_id", vid), zap.Error(err))
			for _, id := range added {
				_ = d.Scheduler.Requeue(id)
				res.Unassigned = append(res.Unassigned, UnassignedOrder{OrderID: id, Reason: err.Error()})
			}
			delete(res.Routes, vid)
			delete(res.Assignments, vid)
			continue
		}
		routes = append(routes, route)

		for _, id := range added {
			if !d.Scheduler.Ack(id) {
				// Cancelled between the check above and the commit.
				d.Fleet.Release(vid, id)
				continue
			}
			obs.DispatchedOrders.WithLabelValues("assigned").Inc()
			if _, err := d.Tracker.Start(ctx, id, vid); err != nil {
				obs.L().Error("start tracking failed", zap.String("order_id", id), zap.Error(err))
			}
		}
	}

	for _, u := range res.Unassigned {
		if err := d.Scheduler.Requeue(u.OrderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("run batch: %w", err)
		}
		obs.DispatchedOrders.WithLabelValues("unassigned").Inc()
	}

	if d.Routes != nil && len(routes) > 0 {
		if err := d.Routes.SaveRoutes(ctx, res.BatchID, routes); err != nil {
			obs.L().Warn("persist routes failed", zap.String("batch_id", res.BatchID), zap.Error(err))
		}
	}

	return res, nil
}

// Run dispatches a batch on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if d.Scheduler.Len() == 0 {
			continue
		}
		if _, err := d.RunBatch(ctx); err != nil {
			obs.L().Error("dispatch batch failed", zap.Error(err))
		}
	}
}

// latestFor returns the delivery bound of a cached order, or zero.
func (d *Dispatcher) latestFor(orderID string) time.Time {
	if d.Cache == nil {
		return time.Time{}
	}
	o, err := d.Cache.Get(orderID)
	if err != nil || o.TimeWindow == nil {
		return time.Time{}
	}
	return o.TimeWindow.Latest
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultBatchSize
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
