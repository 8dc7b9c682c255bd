package events

import (
	"delivery-dispatch-service/internal/ports"
	"sync"
)

// Broker fans delivery events out to in-process subscribers. Slow
// subscribers miss events instead of blocking the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan ports.DeliveryEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan ports.DeliveryEvent]struct{})}
}

func (b *Broker) Subscribe(deliveryID string) chan ports.DeliveryEvent {
	ch := make(chan ports.DeliveryEvent, 8)
	b.mu.Lock()
	if b.subs[deliveryID] == nil {
		b.subs[deliveryID] = make(map[chan ports.DeliveryEvent]struct{})
	}
	b.subs[deliveryID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Broker) Unsubscribe(deliveryID string, ch chan ports.DeliveryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.subs[deliveryID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, deliveryID)
	}
	close(ch)
}

func (b *Broker) Publish(deliveryID string, evt ports.DeliveryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[deliveryID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
