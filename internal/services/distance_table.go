package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// distanceTable memoizes distance rows for the lifetime of one dispatch
// batch, so repeated route optimizations over the same nodes reuse a
// single search per origin. Traffic changes during the batch are not seen.
type distanceTable struct {
	provider ports.DistanceProvider

	mu   sync.RWMutex
	rows map[string]*distanceRow
}

type distanceRow struct {
	results map[string]ports.DistanceResult
	known   map[string]struct{}
}

func newDistanceTable(provider ports.DistanceProvider) *distanceTable {
	return &distanceTable{provider: provider, rows: make(map[string]*distanceRow)}
}

// prefetch loads the rows for every node towards every other node,
// running at most workers lookups concurrently.
func (t *distanceTable) prefetch(ctx context.Context, nodes []string, workers int) error {
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, origin := range nodes {
		targets := make([]string, 0, len(nodes)-1)
		for _, n := range nodes {
			if n != origin {
				targets = append(targets, n)
			}
		}

		g.Go(func() error {
			if _, err := t.GetDistances(ctx, origin, targets); err != nil {
				return fmt.Errorf("prefetch distances from %q: %w", origin, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (t *distanceTable) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	res, err := t.GetDistances(ctx, origin, []string{destination})
	if err != nil {
		return ports.DistanceResult{}, err
	}
	r, ok := res[destination]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("distance %s -> %s: %w", origin, destination, domain.ErrUnreachable)
	}
	return r, nil
}

func (t *distanceTable) GetDistances(ctx context.Context, origin string, destinations []string) (map[string]ports.DistanceResult, error) {
	out := make(map[string]ports.DistanceResult, len(destinations))
	missing := make([]string, 0, len(destinations))

	t.mu.RLock()
	row := t.rows[origin]
	for _, d := range destinations {
		if row != nil {
			if _, ok := row.known[d]; ok {
				if r, reachable := row.results[d]; reachable {
					out[d] = r
				}
				continue
			}
		}
		missing = append(missing, d)
	}
	t.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := t.fetch(ctx, origin, missing)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	row = t.rows[origin]
	if row == nil {
		row = &distanceRow{results: map[string]ports.DistanceResult{}, known: map[string]struct{}{}}
		t.rows[origin] = row
	}
	for _, d := range missing {
		row.known[d] = struct{}{}
		if r, ok := fetched[d]; ok {
			row.results[d] = r
			out[d] = r
		}
	}
	t.mu.Unlock()

	return out, nil
}

// fetch treats an unknown origin as reaching nothing.
func (t *distanceTable) fetch(ctx context.Context, origin string, destinations []string) (map[string]ports.DistanceResult, error) {
	if mp, ok := t.provider.(ports.DistanceMatrixProvider); ok {
		r, err := mp.GetDistances(ctx, origin, destinations)
		if errors.Is(err, domain.ErrUnknownLocation) {
			return map[string]ports.DistanceResult{}, nil
		}
		return r, err
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for _, d := range destinations {
		r, err := t.provider.GetDistance(ctx, origin, d)
		if errors.Is(err, domain.ErrUnreachable) || errors.Is(err, domain.ErrUnknownLocation) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[d] = r
	}
	return out, nil
}
