package cache

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSnapshotTTL = 24 * time.Hour
	DefaultRecentLimit = 50
)

// RedisSnapshotStore mirrors order snapshots into Redis so that other
// processes can look recent orders up. Snapshots expire after TTL and the
// recent list is capped at RecentLimit ids.
type RedisSnapshotStore struct {
	client      *redis.Client
	prefix      string
	TTL         time.Duration
	RecentLimit int
}

func NewRedisSnapshotStore(client *redis.Client, prefix string) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "dispatch"
	}
	return &RedisSnapshotStore{
		client:      client,
		prefix:      prefix,
		TTL:         DefaultSnapshotTTL,
		RecentLimit: DefaultRecentLimit,
	}
}

func (s *RedisSnapshotStore) orderKey(id string) string { return s.prefix + ":order:" + id }
func (s *RedisSnapshotStore) recentKey() string         { return s.prefix + ":orders:recent" }

func (s *RedisSnapshotStore) SaveOrder(ctx context.Context, o domain.Order) (err error) {
	defer obs.Time(ctx, "snapshot.SaveOrder")(&err)

	data, err := json.Marshal(toSnapshot(o))
	if err != nil {
		return fmt.Errorf("save order snapshot %s: encode: %w", o.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.orderKey(o.ID), data, s.TTL)
		pipe.LRem(ctx, s.recentKey(), 0, o.ID)
		pipe.LPush(ctx, s.recentKey(), o.ID)
		pipe.LTrim(ctx, s.recentKey(), 0, int64(s.RecentLimit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save order snapshot %s: %w", o.ID, err)
	}
	return nil
}

// LoadOrder returns domain.ErrNotFound when the snapshot is absent or expired.
func (s *RedisSnapshotStore) LoadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	data, err := s.client.Get(ctx, s.orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Order{}, fmt.Errorf("load order snapshot %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order snapshot %s: %w", orderID, err)
	}

	var snap orderSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Order{}, fmt.Errorf("load order snapshot %s: decode: %w", orderID, err)
	}
	return snap.order(), nil
}

// RecentOrderIDs lists mirrored ids, newest first.
func (s *RedisSnapshotStore) RecentOrderIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > s.RecentLimit {
		limit = s.RecentLimit
	}
	ids, err := s.client.LRange(ctx, s.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent order ids: %w", err)
	}
	return ids, nil
}

type itemSnapshot struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type orderSnapshot struct {
	ID                   string         `json:"id"`
	Items                []itemSnapshot `json:"items"`
	RestaurantLocationID string         `json:"restaurant_location_id,omitempty"`
	DeliveryLocationID   string         `json:"delivery_location_id"`
	Earliest             *time.Time     `json:"earliest,omitempty"`
	Latest               *time.Time     `json:"latest,omitempty"`
	Total                float64        `json:"total"`
	PaymentMethod        string         `json:"payment_method"`
	IsPremiumCustomer    bool           `json:"is_premium_customer"`
	IsExpress            bool           `json:"is_express"`
	Status               string         `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
}

func toSnapshot(o domain.Order) orderSnapshot {
	s := orderSnapshot{
		ID:                   o.ID,
		Items:                make([]itemSnapshot, 0, len(o.Items)),
		RestaurantLocationID: o.RestaurantLocationID,
		DeliveryLocationID:   o.DeliveryLocationID,
		Total:                o.Total,
		PaymentMethod:        string(o.PaymentMethod),
		IsPremiumCustomer:    o.IsPremiumCustomer,
		IsExpress:            o.IsExpress,
		Status:               string(o.Status),
		CreatedAt:            o.CreatedAt,
	}
	for _, it := range o.Items {
		s.Items = append(s.Items, itemSnapshot{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	if w := o.TimeWindow; w != nil {
		if !w.Earliest.IsZero() {
			e := w.Earliest
			s.Earliest = &e
		}
		if !w.Latest.IsZero() {
			l := w.Latest
			s.Latest = &l
		}
	}
	return s
}

func (s orderSnapshot) order() domain.Order {
	o := domain.Order{
		ID:                   s.ID,
		RestaurantLocationID: s.RestaurantLocationID,
		DeliveryLocationID:   s.DeliveryLocationID,
		Total:                s.Total,
		PaymentMethod:        domain.PaymentMethod(s.PaymentMethod),
		IsPremiumCustomer:    s.IsPremiumCustomer,
		IsExpress:            s.IsExpress,
		Status:               domain.DeliveryStatus(s.Status),
		CreatedAt:            s.CreatedAt,
	}
	for _, it := range s.Items {
		o.Items = append(o.Items, domain.OrderItem{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	if s.Earliest != nil || s.Latest != nil {
		o.TimeWindow = &domain.TimeWindow{}
		if s.Earliest != nil {
			o.TimeWindow.Earliest = *s.Earliest
		}
		if s.Latest != nil {
			o.TimeWindow.Latest = *s.Latest
		}
	}
	return o
}
