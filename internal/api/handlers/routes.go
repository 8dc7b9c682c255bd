package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
	"net/http"
	"strings"
	"time"
)

// RouteHandler exposes path finding, ad-hoc route optimization and traffic updates.
type RouteHandler struct {
	Graph     *services.LocationGraph
	Finder    *services.PathFinder
	Optimizer *services.RouteOptimizer
	Now       func() time.Time
}

func (h *RouteHandler) Shortest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, r, http.StatusBadRequest, "from and to are required")
		return
	}

	alg := services.AlgorithmDijkstra
	if s := q.Get("algo"); s != "" {
		var err error
		if alg, err = services.ParseAlgorithm(s); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := h.Finder.Find(alg, from, to)
	if err != nil {
		writeDomainError(w, r, "shortest path", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.ShortestPathResponse{
		From:       from,
		To:         to,
		Algorithm:  alg.String(),
		Path:       res.Path,
		DistanceKm: res.DistanceKm,
	})
}

// Optimize plans a single route from start through the given stops.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := strings.TrimSpace(req.Start)
	if start == "" {
		writeError(w, r, http.StatusBadRequest, "start is required")
		return
	}
	if _, ok := h.Graph.Location(start); !ok {
		writeError(w, r, http.StatusNotFound, "unknown start location "+start)
		return
	}
	if len(req.Stops) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one stop is required")
		return
	}

	stops := make([]services.StopRequest, 0, len(req.Stops))
	for _, s := range req.Stops {
		orderID := s.OrderID
		if orderID == "" {
			orderID = s.LocationID
		}
		if _, ok := h.Graph.Location(s.LocationID); !ok {
			writeError(w, r, http.StatusNotFound, "unknown location "+s.LocationID)
			return
		}
		stops = append(stops, services.StopRequest{OrderID: orderID, LocationID: s.LocationID})
	}

	depart := h.now()
	if req.DepartAt != nil {
		depart = *req.DepartAt
	}

	opt := *h.Optimizer
	if req.ReturnToStart != nil {
		opt.ReturnToStart = *req.ReturnToStart
	}

	route, err := opt.Optimize(r.Context(), req.VehicleID, start, stops, depart)
	if err != nil {
		writeDomainError(w, r, "optimize route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FromRoute(route))
}

// UpdateTraffic records a traffic observation for the edge between two locations.
func (h *RouteHandler) UpdateTraffic(w http.ResponseWriter, r *http.Request) {
	var req dto.TrafficRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	level, err := domain.ParseTrafficLevel(req.Level)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Graph.UpdateTraffic(req.From, req.To, level); err != nil {
		writeDomainError(w, r, "update traffic", err)
		return
	}

	key := domain.EdgeKey(req.From, req.To)
	obsv, _ := h.Graph.Traffic().Observation(key)
	writeJSON(w, r, http.StatusOK, dto.TrafficResponse{
		EdgeKey:    key,
		Level:      string(level),
		Multiplier: h.Graph.Traffic().Multiplier(key),
		ObservedAt: obsv.ObservedAt,
	})
}

func (h *RouteHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
