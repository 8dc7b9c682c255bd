package events

import (
	"context"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker implements ports.EventBroker over Redis Pub/Sub so that
// every server instance sees the events of every tracker.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string

	mu   sync.Mutex
	subs map[chan ports.DeliveryEvent]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "dispatch"
	}
	return &RedisBroker{rdb: rdb, prefix: prefix, subs: make(map[chan ports.DeliveryEvent]*redis.PubSub)}
}

func (b *RedisBroker) chanName(deliveryID string) string { return b.prefix + ":delivery:" + deliveryID }

// Subscribe returns a channel fed from the delivery's Redis channel. It is
// closed after Unsubscribe or when the connection goes away.
func (b *RedisBroker) Subscribe(deliveryID string) chan ports.DeliveryEvent {
	ch := make(chan ports.DeliveryEvent, 16)
	ctx := context.Background()

	ps := b.rdb.Subscribe(ctx, b.chanName(deliveryID))
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		obs.L().Warn("redis subscribe failed", zap.String("delivery_id", deliveryID), zap.Error(err))
	}

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt ports.DeliveryEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				obs.L().Warn("drop malformed delivery event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(_ string, ch chan ports.DeliveryEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()

	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(deliveryID string, evt ports.DeliveryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(evt)
	if err != nil {
		obs.L().Warn("encode delivery event", zap.String("delivery_id", deliveryID), zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(deliveryID), data).Err(); err != nil {
		obs.L().Warn("publish delivery event", zap.String("delivery_id", deliveryID), zap.Error(err))
	}
}

// Close releases every open subscription.
func (b *RedisBroker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[chan ports.DeliveryEvent]*redis.PubSub)
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
}
