package services

import (
	"container/heap"
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"fmt"
	"math"
	"strings"
)

type Algorithm int

const (
	AlgorithmDijkstra Algorithm = iota
	AlgorithmAStar
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmDijkstra:
		return "dijkstra"
	case AlgorithmAStar:
		return "astar"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dijkstra":
		return AlgorithmDijkstra, nil
	case "astar", "a*", "heuristic":
		return AlgorithmAStar, nil
	default:
		return 0, fmt.Errorf("parse algorithm: unsupported algorithm %q", s)
	}
}

// Result of a point-to-point search.
type PathResult struct {
	Path       []string
	DistanceKm float64
}

// Heuristic factories per algorithm. Dijkstra is A* with a zero heuristic.
var heuristics = [...]func(p *PathFinder, goal string) func(string) float64{
	AlgorithmDijkstra: func(*PathFinder, string) func(string) float64 { return nil },
	AlgorithmAStar:    (*PathFinder).straightLine,
}

// PathFinder runs shortest-path searches over a LocationGraph using
// traffic-weighted edge lengths.
//
// Equal-cost paths are resolved to the lexicographically smallest sequence
// of location ids, for both algorithms, so results are reproducible.
// It also implements ports.DistanceMatrixProvider for the route optimizer.
type PathFinder struct {
	graph *LocationGraph
}

func NewPathFinder(graph *LocationGraph) *PathFinder {
	return &PathFinder{graph: graph}
}

// ShortestPath runs Dijkstra from start to goal.
func (p *PathFinder) ShortestPath(start, goal string) (PathResult, error) {
	return p.Find(AlgorithmDijkstra, start, goal)
}

// ShortestPathHeuristic runs A* with a scaled haversine heuristic.
func (p *PathFinder) ShortestPathHeuristic(start, goal string) (PathResult, error) {
	return p.Find(AlgorithmAStar, start, goal)
}

// Find runs the selected algorithm. An unreachable goal yields
// Path=[start], DistanceKm=+Inf and an error wrapping domain.ErrUnreachable.
func (p *PathFinder) Find(alg Algorithm, start, goal string) (PathResult, error) {
	if alg < 0 || int(alg) >= len(heuristics) {
		return PathResult{}, fmt.Errorf("shortest path: %v", alg)
	}
	for _, id := range []string{start, goal} {
		if _, ok := p.graph.Location(id); !ok {
			obs.PathSearches.WithLabelValues(alg.String(), "unknown_location").Inc()
			return PathResult{}, fmt.Errorf("shortest path %s -> %s: %q: %w", start, goal, id, domain.ErrUnknownLocation)
		}
	}

	s, err := p.search(start, goal, heuristics[alg](p, goal))
	if err != nil {
		return PathResult{}, fmt.Errorf("shortest path %s -> %s: %w", start, goal, err)
	}

	g, ok := s.g[goal]
	if !ok {
		obs.PathSearches.WithLabelValues(alg.String(), "unreachable").Inc()
		return PathResult{Path: []string{start}, DistanceKm: math.Inf(1)},
			fmt.Errorf("shortest path %s -> %s: %w", start, goal, domain.ErrUnreachable)
	}

	obs.PathSearches.WithLabelValues(alg.String(), "found").Inc()
	return PathResult{Path: s.pathTo(goal), DistanceKm: g}, nil
}

// PathDistance scores an explicit path under current traffic.
func (p *PathFinder) PathDistance(path []string) (float64, error) {
	if len(path) == 0 {
		return 0, nil
	}
	if _, ok := p.graph.Location(path[0]); !ok {
		return 0, fmt.Errorf("path distance: %q: %w", path[0], domain.ErrUnknownLocation)
	}

	total := 0.0
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		e, ok := p.graph.Edge(from, to)
		if !ok {
			if _, known := p.graph.Location(to); !known {
				return 0, fmt.Errorf("path distance: %q: %w", to, domain.ErrUnknownLocation)
			}
			return 0, fmt.Errorf("path distance: no edge %s-%s: %w", from, to, domain.ErrUnreachable)
		}
		total += p.graph.Traffic().WeightedDistance(e.Key(), e.BaseDistanceKm)
	}
	return total, nil
}

// GetDistance implements ports.DistanceProvider.
func (p *PathFinder) GetDistance(ctx context.Context, origin, destination string) (_ ports.DistanceResult, err error) {
	defer obs.Time(ctx, "pathfinder.GetDistance")(&err)

	r, err := p.ShortestPath(origin, destination)
	if err != nil {
		return ports.DistanceResult{}, err
	}
	return ports.DistanceResult{DistanceKm: r.DistanceKm, Path: r.Path}, nil
}

// GetDistances implements ports.DistanceMatrixProvider with a single
// exhaustive Dijkstra run from origin.
func (p *PathFinder) GetDistances(ctx context.Context, origin string, destinations []string) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "pathfinder.GetDistances")(&err)

	if _, ok := p.graph.Location(origin); !ok {
		return nil, fmt.Errorf("get distances from %q: %w", origin, domain.ErrUnknownLocation)
	}

	s, err := p.search(origin, "", nil)
	if err != nil {
		return nil, fmt.Errorf("get distances from %q: %w", origin, err)
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for _, d := range destinations {
		g, ok := s.g[d]
		if !ok {
			continue
		}
		out[d] = ports.DistanceResult{DistanceKm: g, Path: s.pathTo(d)}
	}
	return out, nil
}

func (p *PathFinder) straightLine(goal string) func(string) float64 {
	target, _ := p.graph.Location(goal)
	scale := p.graph.HeuristicScale()

	return func(id string) float64 {
		loc, ok := p.graph.Location(id)
		if !ok {
			return 0
		}
		return scale * loc.Coords.DistanceKm(target.Coords)
	}
}

// search explores from start until goal is settled, or exhaustively when
// goal is empty. h may be nil.
func (p *PathFinder) search(start, goal string, h func(string) float64) (*searchState, error) {
	if h == nil {
		h = func(string) float64 { return 0 }
	}

	s := &searchState{
		start:  start,
		g:      map[string]float64{start: 0},
		prev:   map[string]string{},
		closed: map[string]bool{},
	}
	open := &frontier{}
	heap.Push(open, &frontierItem{id: start, g: 0, f: h(start), seq: s.nextSeq()})

	goalF := math.Inf(1)
	for open.Len() > 0 {
		it := heap.Pop(open).(*frontierItem)

		// Once the goal is settled only entries tied with it can still
		// contribute an equal-cost predecessor.
		if it.f > goalF && !almostEqual(it.f, goalF) {
			break
		}
		if s.closed[it.id] || it.g > s.g[it.id] && !almostEqual(it.g, s.g[it.id]) {
			continue
		}
		s.closed[it.id] = true

		if it.id == goal {
			goalF = it.f
			continue
		}

		next, err := p.graph.Neighbors(it.id)
		if err != nil {
			return nil, err
		}
		for v, w := range next {
			cand := it.g + w
			cur, seen := s.g[v]
			switch {
			case !seen || cand < cur && !almostEqual(cand, cur):
				s.g[v] = cand
				s.prev[v] = it.id
				if !s.closed[v] {
					heap.Push(open, &frontierItem{id: v, g: cand, f: cand + h(v), seq: s.nextSeq()})
				}
			case almostEqual(cand, cur) && v != start:
				s.preferLexicographic(v, it.id)
			}
		}
	}
	return s, nil
}

type searchState struct {
	start  string
	g      map[string]float64
	prev   map[string]string
	closed map[string]bool
	seq    uint64
}

func (s *searchState) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *searchState) pathTo(id string) []string {
	path := []string{id}
	for id != s.start {
		id = s.prev[id]
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// preferLexicographic re-points v at via when the path through via has the
// same cost and a smaller id sequence than v's current path.
func (s *searchState) preferLexicographic(v, via string) {
	viaPath := s.pathTo(via)
	for _, id := range viaPath {
		if id == v {
			return
		}
	}
	if lessPath(append(viaPath, v), s.pathTo(v)) {
		s.prev[v] = via
	}
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func almostEqual(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

type frontierItem struct {
	id  string
	g   float64
	f   float64
	seq uint64
}

// frontier is a min-heap on f, then insertion order.
type frontier []*frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if !almostEqual(f[i].f, f[j].f) {
		return f[i].f < f[j].f
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}
