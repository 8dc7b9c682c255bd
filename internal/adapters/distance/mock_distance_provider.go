package distance

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"fmt"
	"sync/atomic"
)

// MockPair is one road distance. Pairs are symmetric unless the reverse
// direction is listed explicitly.
type MockPair struct {
	From, To string
	Km       float64
}

// MockDistanceProvider serves fixed distances; unknown pairs are unreachable.
type MockDistanceProvider struct {
	m     map[string]ports.DistanceResult
	calls atomic.Int64
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, 2*len(pairs))
	for _, p := range pairs {
		m[p.From+"|"+p.To] = ports.DistanceResult{DistanceKm: p.Km, Path: []string{p.From, p.To}}
	}
	for _, p := range pairs {
		if _, ok := m[p.To+"|"+p.From]; !ok {
			m[p.To+"|"+p.From] = ports.DistanceResult{DistanceKm: p.Km, Path: []string{p.To, p.From}}
		}
	}
	return &MockDistanceProvider{m: m}
}

func (p *MockDistanceProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	p.calls.Add(1)
	if origin == destination {
		return ports.DistanceResult{Path: []string{origin}}, nil
	}

	r, ok := p.m[origin+"|"+destination]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("missing pair %q -> %q: %w", origin, destination, domain.ErrUnreachable)
	}

	return r, nil
}

// Calls reports how many lookups were served.
func (p *MockDistanceProvider) Calls() int64 { return p.calls.Load() }
