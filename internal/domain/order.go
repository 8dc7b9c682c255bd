package domain

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch p := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); p {
	case PaymentCash, PaymentCard:
		return p, nil
	default:
		return "", fmt.Errorf("parse payment method: unsupported method %q", s)
	}
}

// A single line of an order.
type OrderItem struct {
	ID        string
	Name      string
	UnitPrice float64
	Quantity  int
}

// Delivery window requested by the customer. Zero bounds are open.
type TimeWindow struct {
	Earliest time.Time
	Latest   time.Time
}

// Allows reports whether t satisfies the latest bound of the window.
func (w TimeWindow) Allows(t time.Time) bool {
	return w.Latest.IsZero() || !t.After(w.Latest)
}

// Represents a customer order supplied by the ordering collaborator.
// Everything except Status is immutable once the order reaches dispatch;
// Status is owned by delivery tracking.
type Order struct {
	ID                   string
	Items                []OrderItem
	RestaurantLocationID string
	DeliveryLocationID   string
	TimeWindow           *TimeWindow
	Total                float64
	PaymentMethod        PaymentMethod
	IsPremiumCustomer    bool
	IsExpress            bool
	Status               DeliveryStatus
	CreatedAt            time.Time
}

// Validate checks the fields the dispatch path depends on.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("validate order: id must be non-empty")
	}
	if strings.TrimSpace(o.DeliveryLocationID) == "" {
		return fmt.Errorf("validate order %s: delivery location must be non-empty", o.ID)
	}
	if o.Total < 0 {
		return fmt.Errorf("validate order %s: total must be >= 0, got %.2f", o.ID, o.Total)
	}
	for i, it := range o.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("validate order %s: item #%d quantity must be > 0", o.ID, i+1)
		}
	}
	if w := o.TimeWindow; w != nil && !w.Earliest.IsZero() && !w.Latest.IsZero() && w.Latest.Before(w.Earliest) {
		return fmt.Errorf("validate order %s: time window latest before earliest", o.ID)
	}
	return nil
}

// Snapshot returns a deep copy safe to hand to caches and other goroutines.
func (o Order) Snapshot() Order {
	cp := o
	cp.Items = append([]OrderItem(nil), o.Items...)
	if o.TimeWindow != nil {
		w := *o.TimeWindow
		cp.TimeWindow = &w
	}
	return cp
}
