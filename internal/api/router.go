package api

import (
	"delivery-dispatch-service/internal/api/handlers"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps are the engine components the HTTP API is served from.
type Deps struct {
	Graph      *services.LocationGraph
	Finder     *services.PathFinder
	Optimizer  *services.RouteOptimizer
	Dispatcher *services.Dispatcher
	Menu       *services.MenuSearchIndex
	Broker     ports.EventBroker
	// Order intake limit in requests per second; zero disables limiting.
	OrderRateLimit float64
	OrderRateBurst int
	Now            func() time.Time
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	routeHandler := &handlers.RouteHandler{
		Graph:     d.Graph,
		Finder:    d.Finder,
		Optimizer: d.Optimizer,
		Now:       d.Now,
	}
	orderHandler := &handlers.OrderHandler{Dispatcher: d.Dispatcher, Graph: d.Graph}
	deliveryHandler := &handlers.DeliveryHandler{Tracker: d.Dispatcher.Tracker, Broker: d.Broker}
	menuHandler := &handlers.MenuHandler{Index: d.Menu}

	intake := func(next http.Handler) http.Handler { return next }
	if d.OrderRateLimit > 0 {
		burst := d.OrderRateBurst
		if burst < 1 {
			burst = 1
		}
		intake = rateLimit(rate.NewLimiter(rate.Limit(d.OrderRateLimit), burst))
	}

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/routes/shortest", routeHandler.Shortest)
		r.Post("/routes/optimize", routeHandler.Optimize)
		r.Post("/traffic", routeHandler.UpdateTraffic)

		r.With(intake).Post("/orders", orderHandler.Submit)
		r.Get("/orders/recent", orderHandler.Recent)
		r.Get("/orders/{id}", orderHandler.Get)
		r.Post("/orders/{id}/cancel", orderHandler.Cancel)
		r.Get("/queue/next", orderHandler.Next)
		r.Post("/dispatch", orderHandler.Dispatch)

		r.Get("/deliveries/{id}", deliveryHandler.Get)
		r.Post("/deliveries/{id}/advance", deliveryHandler.Advance)
		r.Post("/deliveries/{id}/delays", deliveryHandler.Delay)
		r.Post("/deliveries/{id}/cancel", deliveryHandler.Cancel)
		r.Get("/deliveries/{id}/ws", deliveryHandler.Stream)

		r.Get("/menu/search", menuHandler.Search)
	})

	return r
}
