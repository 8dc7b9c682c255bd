package services

import (
	"cmp"
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// An order the batch could not place, with the last reason it was rejected.
type UnassignedOrder struct {
	OrderID string
	Reason  string
}

// Outcome of one dispatch batch. Unassigned orders are a soft failure and
// do not make the batch fail.
type DispatchResult struct {
	BatchID     string
	Routes      map[string]*domain.Route
	Assignments map[string][]string
	Unassigned  []UnassignedOrder
}

// Err reports the unassigned orders as an error wrapping domain.ErrUnassigned.
func (r *DispatchResult) Err() error {
	if len(r.Unassigned) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Unassigned))
	for _, u := range r.Unassigned {
		ids = append(ids, u.OrderID)
	}
	return fmt.Errorf("dispatch batch %s: %d orders %v: %w", r.BatchID, len(ids), ids, domain.ErrUnassigned)
}

// DispatchAssigner distributes a batch of orders across vehicles.
//
// Vehicles are filled greedily, largest capacity first. An order with a
// time window is only accepted when the re-optimized route still reaches
// every windowed order of the vehicle before its latest bound; orders
// without a window are always accepted while capacity lasts. The
// optimizer is given every bound so it prefers orderings that keep them.
type DispatchAssigner struct {
	Optimizer *RouteOptimizer
	// Concurrent distance prefetches per batch.
	Workers int
}

func NewDispatchAssigner(optimizer *RouteOptimizer, workers int) *DispatchAssigner {
	return &DispatchAssigner{Optimizer: optimizer, Workers: workers}
}

// Assign places orders (in priority order) onto vehicles. Vehicles are
// mutated through Vehicle.Assign; pass clones when the caller commits later.
func (a *DispatchAssigner) Assign(
	ctx context.Context,
	orders []domain.Order,
	vehicles []*domain.Vehicle,
	departAt time.Time,
) (*DispatchResult, error) {
	return a.AssignCarrying(ctx, orders, vehicles, nil, departAt)
}

// AssignCarrying is Assign for vehicles that already hold orders: carried
// lists, per vehicle id, the stops still to be served. A vehicle that
// takes new orders gets a route through its carried stops as well.
func (a *DispatchAssigner) AssignCarrying(
	ctx context.Context,
	orders []domain.Order,
	vehicles []*domain.Vehicle,
	carried map[string][]StopRequest,
	departAt time.Time,
) (_ *DispatchResult, err error) {
	defer obs.Time(ctx, "dispatch.Assign")(&err)

	if a.Optimizer == nil {
		return nil, errors.New("assign orders: optimizer must be non-nil")
	}

	res := &DispatchResult{
		BatchID:     uuid.NewString(),
		Routes:      make(map[string]*domain.Route),
		Assignments: make(map[string][]string),
	}
	if len(orders) == 0 {
		return res, nil
	}

	fleet := make([]*domain.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v != nil && v.Status != domain.VehicleOffline && v.RemainingCapacity() > 0 {
			fleet = append(fleet, v)
		}
	}

	// Largest vehicles first; ids keep equal capacities deterministic.
	slices.SortStableFunc(fleet, func(x, y *domain.Vehicle) int {
		if c := cmp.Compare(y.Capacity, x.Capacity); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})

	table := newDistanceTable(a.Optimizer.Distances)
	if err := table.prefetch(ctx, batchNodes(orders, fleet, carried), a.Workers); err != nil {
		return nil, fmt.Errorf("assign orders: %w", err)
	}
	optimizer := *a.Optimizer
	optimizer.Distances = table

	reasons := make(map[string]string, len(orders))
	pool := orders

	for _, v := range fleet {
		var (
			accepted []domain.Order
			route    *domain.Route
			leftover = make([]domain.Order, 0, len(pool))
		)

		for _, o := range pool {
			if v.RemainingCapacity() == 0 {
				leftover = append(leftover, o)
				continue
			}

			candidate := append(slices.Clone(accepted), o)
			stops := append(slices.Clone(carried[v.ID]), stopRequests(candidate)...)
			r, err := optimizer.Optimize(ctx, v.ID, v.CurrentLocationID, stops, departAt)
			switch {
			case errors.Is(err, domain.ErrUnreachable), errors.Is(err, domain.ErrUnknownLocation):
				reasons[o.ID] = fmt.Sprintf("vehicle %s: %v", v.ID, err)
				leftover = append(leftover, o)
				continue
			case err != nil:
				return nil, fmt.Errorf("assign orders: vehicle %s: %w", v.ID, err)
			}

			if o.TimeWindow != nil {
				if late, ok := missedWindow(r, stops); ok {
					reasons[o.ID] = fmt.Sprintf("vehicle %s: order %s would miss its time window", v.ID, late)
					leftover = append(leftover, o)
					continue
				}
			}

			if err := v.Assign(o.ID); err != nil {
				return nil, fmt.Errorf("assign orders: %w", err)
			}
			accepted = candidate
			route = r
		}

		if route != nil {
			res.Routes[v.ID] = route
			res.Assignments[v.ID] = slices.Clone(v.AssignedOrderIDs)
		}
		pool = leftover
		if len(pool) == 0 {
			break
		}
	}

	for _, o := range pool {
		reason := reasons[o.ID]
		if reason == "" {
			reason = "no vehicle capacity left"
		}
		res.Unassigned = append(res.Unassigned, UnassignedOrder{OrderID: o.ID, Reason: reason})
	}

	obs.L().Info("dispatch batch assigned",
		zap.String("batch_id", res.BatchID),
		zap.Int("orders", len(orders)),
		zap.Int("vehicles", len(res.Routes)),
		zap.Int("unassigned", len(res.Unassigned)),
	)
	return res, nil
}

// missedWindow returns the first bounded stop, carried or new, that the
// route reaches after its latest bound.
func missedWindow(r *domain.Route, stops []StopRequest) (string, bool) {
	for _, sr := range stops {
		if sr.Latest.IsZero() {
			continue
		}
		stop, ok := r.StopFor(sr.OrderID)
		if !ok || stop.EstimatedArrival.After(sr.Latest) {
			return sr.OrderID, true
		}
	}
	return "", false
}

func stopRequests(orders []domain.Order) []StopRequest {
	out := make([]StopRequest, 0, len(orders))
	for _, o := range orders {
		sr := StopRequest{OrderID: o.ID, LocationID: o.DeliveryLocationID}
		if o.TimeWindow != nil {
			sr.Latest = o.TimeWindow.Latest
		}
		out = append(out, sr)
	}
	return out
}

// batchNodes lists every location a batch can route between.
func batchNodes(orders []domain.Order, vehicles []*domain.Vehicle, carried map[string][]StopRequest) []string {
	seen := make(map[string]struct{})
	nodes := []string{}
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		nodes = append(nodes, id)
	}
	for _, v := range vehicles {
		add(v.CurrentLocationID)
		for _, sr := range carried[v.ID] {
			add(sr.LocationID)
		}
	}
	for _, o := range orders {
		add(o.DeliveryLocationID)
	}
	return nodes
}
