package ports

import (
	"context"
	"delivery-dispatch-service/internal/domain"
)

// Port: an out-of-process mirror of recently seen order snapshots.
type SnapshotStore interface {
	SaveOrder(ctx context.Context, order domain.Order) error
	LoadOrder(ctx context.Context, orderID string) (domain.Order, error)
	RecentOrderIDs(ctx context.Context, limit int) ([]string, error)
}
