package services

import (
	"delivery-dispatch-service/internal/domain"
	"sync"
	"time"
)

// Observations older than this no longer affect edge weights.
const TrafficStaleAfter = 15 * time.Minute

// TrafficModel keeps the latest congestion reading per edge and turns it
// into a weight multiplier. Readings decay back to free-flow once stale.
type TrafficModel struct {
	mu  sync.RWMutex
	obs map[string]domain.TrafficObservation
	now func() time.Time
	ttl time.Duration
}

func NewTrafficModel() *TrafficModel {
	return &TrafficModel{
		obs: make(map[string]domain.TrafficObservation),
		now: time.Now,
		ttl: TrafficStaleAfter,
	}
}

// WithClock replaces the time source. Intended for tests and replays.
func (m *TrafficModel) WithClock(now func() time.Time) *TrafficModel {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// UpdateTraffic records level for edgeKey as observed now.
func (m *TrafficModel) UpdateTraffic(edgeKey string, level domain.TrafficLevel) domain.TrafficObservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := domain.TrafficObservation{Level: level, ObservedAt: m.now()}
	m.obs[edgeKey] = o
	return o
}

// Observation returns the last reading for edgeKey, stale or not.
func (m *TrafficModel) Observation(edgeKey string) (domain.TrafficObservation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.obs[edgeKey]
	return o, ok
}

// Multiplier is 1.0 for unobserved or stale edges, else the level's factor.
func (m *TrafficModel) Multiplier(edgeKey string) float64 {
	if m == nil {
		return 1.0
	}

	m.mu.RLock()
	o, ok := m.obs[edgeKey]
	now := m.now()
	m.mu.RUnlock()

	if !ok || now.Sub(o.ObservedAt) > m.ttl {
		return 1.0
	}
	return o.Level.Multiplier()
}

// WeightedDistance applies the current multiplier to a base distance.
func (m *TrafficModel) WeightedDistance(edgeKey string, baseKm float64) float64 {
	return baseKm * m.Multiplier(edgeKey)
}
