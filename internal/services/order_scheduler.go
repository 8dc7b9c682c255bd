package services

import (
	"container/heap"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"fmt"
	"sync"
)

// Priority scores an order; lower values are served first.
func Priority(o domain.Order) int {
	p := 0
	switch {
	case o.Total > 100:
		p -= 2
	case o.Total > 50:
		p--
	}
	if o.PaymentMethod == domain.PaymentCard {
		p -= 2
	}
	if len(o.Items) > 5 {
		p--
	}
	if o.IsPremiumCustomer {
		p -= 3
	}
	if o.IsExpress {
		p -= 5
	}
	return p
}

type scheduledOrder struct {
	order    domain.Order
	priority int
	seq      uint64
	index    int
	// Set when the order is removed while a batch holds it.
	withdrawn bool
}

// OrderScheduler is a concurrency-safe priority queue of pending orders.
// Equal priorities are served in arrival order.
//
// Dequeued orders stay in flight until Ack or Requeue; Requeue restores
// their original position among equal priorities. An in-flight order that
// is removed is withdrawn: Ack reports it and Requeue drops it.
type OrderScheduler struct {
	mu       sync.Mutex
	queue    orderHeap
	queued   map[string]*scheduledOrder
	inflight map[string]*scheduledOrder
	seq      uint64
}

func NewOrderScheduler() *OrderScheduler {
	return &OrderScheduler{
		queued:   make(map[string]*scheduledOrder),
		inflight: make(map[string]*scheduledOrder),
	}
}

// Enqueue adds the order and returns its priority. Enqueuing an id that is
// already queued replaces the order but keeps its place among equals.
func (s *OrderScheduler) Enqueue(o domain.Order) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Priority(o)
	if cur, ok := s.queued[o.ID]; ok {
		cur.order = o
		cur.priority = p
		heap.Fix(&s.queue, cur.index)
	} else {
		delete(s.inflight, o.ID)
		s.seq++
		it := &scheduledOrder{order: o, priority: p, seq: s.seq}
		heap.Push(&s.queue, it)
		s.queued[o.ID] = it
	}
	s.updateDepth()
	return p
}

// Dequeue removes the highest-priority order or returns domain.ErrEmpty.
func (s *OrderScheduler) Dequeue() (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return domain.Order{}, fmt.Errorf("dequeue: %w", domain.ErrEmpty)
	}
	return s.popLocked().order, nil
}

// DequeueBatch removes up to n orders in priority order.
func (s *OrderScheduler) DequeueBatch(n int) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Order, 0, min(n, s.queue.Len()))
	for len(out) < n && s.queue.Len() > 0 {
		out = append(out, s.popLocked().order)
	}
	return out
}

// Peek returns the next order without removing it.
func (s *OrderScheduler) Peek() (domain.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return domain.Order{}, 0, fmt.Errorf("peek: %w", domain.ErrEmpty)
	}
	return s.queue[0].order, s.queue[0].priority, nil
}

// Ack forgets an in-flight order. It returns false when the order was
// withdrawn while in flight and must not be dispatched.
func (s *OrderScheduler) Ack(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.inflight[orderID]
	delete(s.inflight, orderID)
	return !ok || !it.withdrawn
}

// Withdrawn reports whether an in-flight order has been removed.
func (s *OrderScheduler) Withdrawn(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.inflight[orderID]
	return ok && it.withdrawn
}

// Requeue puts an in-flight order back with its original sequence number.
func (s *OrderScheduler) Requeue(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.inflight[orderID]
	if !ok {
		return fmt.Errorf("requeue %s: %w", orderID, domain.ErrNotFound)
	}
	delete(s.inflight, orderID)
	if it.withdrawn {
		return nil
	}
	heap.Push(&s.queue, it)
	s.queued[orderID] = it
	s.updateDepth()
	return nil
}

// Remove drops a queued order, e.g. when it is cancelled before dispatch,
// or withdraws it from a batch in progress.
func (s *OrderScheduler) Remove(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.inflight[orderID]; ok {
		if it.withdrawn {
			return false
		}
		it.withdrawn = true
		return true
	}
	it, ok := s.queued[orderID]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, it.index)
	delete(s.queued, orderID)
	s.updateDepth()
	return true
}

func (s *OrderScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *OrderScheduler) popLocked() *scheduledOrder {
	it := heap.Pop(&s.queue).(*scheduledOrder)
	delete(s.queued, it.order.ID)
	s.inflight[it.order.ID] = it
	s.updateDepth()
	return it
}

func (s *OrderScheduler) updateDepth() {
	obs.QueueDepth.Set(float64(s.queue.Len()))
}

type orderHeap []*scheduledOrder

func (h orderHeap) Len() int { return len(h) }
func (h orderHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h orderHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *orderHeap) Push(x any) {
	it := x.(*scheduledOrder)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *orderHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
