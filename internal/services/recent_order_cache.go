package services

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const DefaultRecentOrderCapacity = 50

// RecentOrderCache keeps snapshots of the most recently touched orders.
// Get promotes an entry; Put beyond capacity evicts the least recent one.
//
// When a mirror is configured every Put is also written there so other
// processes can look orders up; the in-process LRU stays authoritative.
type RecentOrderCache struct {
	lru    *lru.Cache[string, domain.Order]
	mirror ports.SnapshotStore
}

func NewRecentOrderCache(capacity int, mirror ports.SnapshotStore) (*RecentOrderCache, error) {
	c, err := lru.NewWithEvict[string, domain.Order](capacity, func(string, domain.Order) {
		obs.CacheEvents.WithLabelValues("evict").Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("new recent order cache: capacity %d: %w", capacity, err)
	}
	return &RecentOrderCache{lru: c, mirror: mirror}, nil
}

// Put stores a snapshot of order as the most recent entry.
func (c *RecentOrderCache) Put(ctx context.Context, order domain.Order) {
	snap := order.Snapshot()
	c.lru.Add(order.ID, snap)

	if c.mirror == nil {
		return
	}
	if err := c.mirror.SaveOrder(ctx, snap); err != nil {
		obs.L().Warn("mirror order snapshot failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// Get returns the cached snapshot and marks it most recent, or domain.ErrMiss.
func (c *RecentOrderCache) Get(orderID string) (domain.Order, error) {
	o, ok := c.lru.Get(orderID)
	if !ok {
		obs.CacheEvents.WithLabelValues("miss").Inc()
		return domain.Order{}, fmt.Errorf("recent order %s: %w", orderID, domain.ErrMiss)
	}
	obs.CacheEvents.WithLabelValues("hit").Inc()
	return o.Snapshot(), nil
}

// Lookup consults the local cache and then the mirror.
func (c *RecentOrderCache) Lookup(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := c.Get(orderID)
	if err == nil || c.mirror == nil {
		return o, err
	}

	o, mErr := c.mirror.LoadOrder(ctx, orderID)
	if mErr != nil {
		if errors.Is(mErr, domain.ErrNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("recent order %s: mirror: %w", orderID, mErr)
	}
	return o, nil
}

// Recent returns up to limit snapshots, most recent first, without promoting them.
func (c *RecentOrderCache) Recent(limit int) []domain.Order {
	keys := c.lru.Keys()
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}

	out := make([]domain.Order, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		if o, ok := c.lru.Peek(keys[i]); ok {
			out = append(out, o.Snapshot())
		}
	}
	return out
}

func (c *RecentOrderCache) Len() int { return c.lru.Len() }
