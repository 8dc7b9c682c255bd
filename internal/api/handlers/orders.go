package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultRecentLimit = 10

// OrderHandler exposes order intake, lookup, cancellation and dispatch.
type OrderHandler struct {
	Dispatcher *services.Dispatcher
	Graph      *services.LocationGraph
}

func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := req.ToDomain()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := h.Graph.Location(o.DeliveryLocationID); !ok {
		writeError(w, r, http.StatusNotFound, "unknown delivery location "+o.DeliveryLocationID)
		return
	}

	p, err := h.Dispatcher.Submit(r.Context(), o)
	if err != nil {
		writeDomainError(w, r, "submit order", err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, dto.SubmitOrderResponse{OrderID: o.ID, Priority: p})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.Dispatcher.Cache.Lookup(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "get order", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FromOrder(o))
}

// Recent lists the most recently touched orders, newest first.
func (h *OrderHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders := h.Dispatcher.Cache.Recent(limit)
	res := dto.ListOrdersResponse{Orders: make([]dto.OrderResponse, 0, len(orders))}
	for _, o := range orders {
		res.Orders = append(res.Orders, dto.FromOrder(o))
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Cancel is the customer-facing cancellation: only orders that are still
// queued, pending or confirmed can be cancelled.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if rec, err := h.Dispatcher.Tracker.Get(domain.DeliveryIDFor(id)); err == nil && !domain.CustomerCancellable(rec.Status) {
		writeError(w, r, http.StatusConflict, "order "+id+" can no longer be cancelled ("+string(rec.Status)+")")
		return
	}

	if err := h.Dispatcher.CancelOrder(r.Context(), id); err != nil {
		writeDomainError(w, r, "cancel order", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"order_id": id, "status": string(domain.StatusCancelled)})
}

// Next peeks at the order that the next dispatch batch will serve first.
func (h *OrderHandler) Next(w http.ResponseWriter, r *http.Request) {
	o, p, err := h.Dispatcher.Scheduler.Peek()
	if errors.Is(err, domain.ErrEmpty) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeDomainError(w, r, "peek queue", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.QueueNextResponse{Order: dto.FromOrder(o), Priority: p})
}

// Dispatch runs one dispatch batch immediately.
func (h *OrderHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.Dispatcher.RunBatch(r.Context())
	if err != nil {
		writeDomainError(w, r, "dispatch", err)
		return
	}

	vehicleIDs := make([]string, 0, len(res.Routes))
	for vid := range res.Routes {
		vehicleIDs = append(vehicleIDs, vid)
	}
	slices.Sort(vehicleIDs)

	out := dto.DispatchResponse{
		BatchID:    res.BatchID,
		Routes:     make([]dto.RouteResponse, 0, len(vehicleIDs)),
		Unassigned: make([]dto.UnassignedResponse, 0, len(res.Unassigned)),
	}
	for _, vid := range vehicleIDs {
		out.Routes = append(out.Routes, dto.FromRoute(res.Routes[vid]))
	}
	for _, u := range res.Unassigned {
		out.Unassigned = append(out.Unassigned, dto.UnassignedResponse{OrderID: u.OrderID, Reason: u.Reason})
	}

	writeJSON(w, r, http.StatusOK, out)
}
