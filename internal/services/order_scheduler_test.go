package services

import (
	"delivery-dispatch-service/internal/domain"
	"errors"
	"testing"
)

func TestPriority(t *testing.T) {
	cases := []struct {
		name  string
		order domain.Order
		want  int
	}{
		{"plain", domain.Order{Total: 20, PaymentMethod: domain.PaymentCash}, 0},
		{"mid total", domain.Order{Total: 60}, -1},
		{"large total", domain.Order{Total: 150}, -2},
		{"card", domain.Order{Total: 20, PaymentMethod: domain.PaymentCard}, -2},
		{"many items", domain.Order{Items: make([]domain.OrderItem, 6)}, -1},
		{"premium", domain.Order{IsPremiumCustomer: true}, -3},
		{"express", domain.Order{IsExpress: true}, -5},
		{"everything", domain.Order{Total: 150, PaymentMethod: domain.PaymentCard, Items: make([]domain.OrderItem, 6), IsPremiumCustomer: true, IsExpress: true}, -13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Priority(tc.order); got != tc.want {
				t.Fatalf("Priority = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSchedulerServesCardOrderFirst(t *testing.T) {
	s := NewOrderScheduler()
	s.Enqueue(domain.Order{ID: "a", Total: 20, PaymentMethod: domain.PaymentCash})
	s.Enqueue(domain.Order{ID: "b", Total: 150, PaymentMethod: domain.PaymentCard})
	s.Enqueue(domain.Order{ID: "c", Total: 60, PaymentMethod: domain.PaymentCash})

	want := []string{"b", "c", "a"}
	for _, id := range want {
		o, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if o.ID != id {
			t.Fatalf("dequeued %s, want %s", o.ID, id)
		}
	}

	if _, err := s.Dequeue(); !errors.Is(err, domain.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestSchedulerKeepsArrivalOrderForEqualPriority(t *testing.T) {
	s := NewOrderScheduler()
	for _, id := range []string{"o1", "o2", "o3", "o4"} {
		s.Enqueue(domain.Order{ID: id, Total: 10})
	}

	got := s.DequeueBatch(10)
	if len(got) != 4 {
		t.Fatalf("batch len = %d, want 4", len(got))
	}
	for i, id := range []string{"o1", "o2", "o3", "o4"} {
		if got[i].ID != id {
			t.Fatalf("batch[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestSchedulerPeek(t *testing.T) {
	s := NewOrderScheduler()
	if _, _, err := s.Peek(); !errors.Is(err, domain.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	s.Enqueue(domain.Order{ID: "slow", Total: 10})
	s.Enqueue(domain.Order{ID: "fast", IsExpress: true})

	o, p, err := s.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if o.ID != "fast" || p != -5 {
		t.Fatalf("peek = %s/%d, want fast/-5", o.ID, p)
	}
	if s.Len() != 2 {
		t.Fatalf("peek must not remove, len=%d", s.Len())
	}
}

func TestSchedulerRequeueRestoresPosition(t *testing.T) {
	s := NewOrderScheduler()
	s.Enqueue(domain.Order{ID: "first", Total: 10})
	s.Enqueue(domain.Order{ID: "second", Total: 10})

	batch := s.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != "first" {
		t.Fatalf("batch = %v", batch)
	}

	s.Enqueue(domain.Order{ID: "third", Total: 10})
	if err := s.Requeue("first"); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	o, _ := s.Dequeue()
	if o.ID != "first" {
		t.Fatalf("dequeued %s, want first", o.ID)
	}

	s.Ack("first")
	if err := s.Requeue("first"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ack, got %v", err)
	}
}

func TestSchedulerEnqueueReplacesDuplicate(t *testing.T) {
	s := NewOrderScheduler()
	s.Enqueue(domain.Order{ID: "o1", Total: 10})
	s.Enqueue(domain.Order{ID: "o2", Total: 10})

	if p := s.Enqueue(domain.Order{ID: "o2", Total: 10, IsExpress: true}); p != -5 {
		t.Fatalf("priority = %d, want -5", p)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	o, _ := s.Dequeue()
	if o.ID != "o2" || !o.IsExpress {
		t.Fatalf("dequeued %+v, want updated o2", o)
	}
}

func TestSchedulerRemove(t *testing.T) {
	s := NewOrderScheduler()
	s.Enqueue(domain.Order{ID: "o1"})
	s.Enqueue(domain.Order{ID: "o2"})

	if !s.Remove("o1") {
		t.Fatalf("remove o1 should succeed")
	}
	if s.Remove("o1") {
		t.Fatalf("second remove should report false")
	}

	o, err := s.Dequeue()
	if err != nil || o.ID != "o2" {
		t.Fatalf("dequeue = %v, %v", o.ID, err)
	}
}

func TestSchedulerRemoveInFlight(t *testing.T) {
	s := NewOrderScheduler()
	s.Enqueue(domain.Order{ID: "o1"})
	s.Enqueue(domain.Order{ID: "o2"})
	s.DequeueBatch(2)

	if !s.Remove("o1") {
		t.Fatalf("removing an in-flight order should succeed")
	}
	if s.Remove("o1") {
		t.Fatalf("second remove should report false")
	}
	if s.Ack("o1") {
		t.Fatalf("ack of a withdrawn order must report false")
	}
	if !s.Ack("o2") {
		t.Fatalf("ack of o2 should report true")
	}

	s.Enqueue(domain.Order{ID: "o3"})
	s.DequeueBatch(1)
	s.Remove("o3")
	if err := s.Requeue("o3"); err != nil {
		t.Fatalf("requeue withdrawn: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("withdrawn order must not return to the queue, len=%d", s.Len())
	}
}
