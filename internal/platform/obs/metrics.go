package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PathSearches counts shortest-path searches by algorithm and outcome.
	PathSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "path_searches_total", Help: "Shortest path searches by algorithm and outcome."},
		[]string{"algorithm", "outcome"},
	)
	DispatchBatches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatch_batches_total", Help: "Dispatch batches executed."},
	)
	// DispatchedOrders counts orders per batch outcome (assigned or unassigned).
	DispatchedOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_orders_total", Help: "Orders processed by dispatch, by outcome."},
		[]string{"outcome"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "order_queue_depth", Help: "Orders waiting in the scheduler."},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recent_order_cache_events_total", Help: "Recent order cache hits, misses and evictions."},
		[]string{"event"},
	)
	DeliveryTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "delivery_transitions_total", Help: "Delivery status transitions by target status."},
		[]string{"status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call repeatedly.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			PathSearches,
			DispatchBatches,
			DispatchedOrders,
			QueueDepth,
			CacheEvents,
			DeliveryTransitions,
		)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
