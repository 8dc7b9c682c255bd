package dto

import (
	"delivery-dispatch-service/internal/domain"
	"fmt"
	"strings"
	"time"
)

type OrderItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type TimeWindow struct {
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
}

// CreateOrderRequest is the wire form of a new order, shared by the HTTP
// intake and the order stream consumer.
type CreateOrderRequest struct {
	ID                   string      `json:"id"`
	Items                []OrderItem `json:"items"`
	RestaurantLocationID string      `json:"restaurant_location_id"`
	DeliveryLocationID   string      `json:"delivery_location_id"`
	TimeWindow           *TimeWindow `json:"time_window,omitempty"`
	Total                float64     `json:"total"`
	PaymentMethod        string      `json:"payment_method"`
	IsPremiumCustomer    bool        `json:"is_premium_customer"`
	IsExpress            bool        `json:"is_express"`
}

// ToDomain converts the request; payment defaults to cash.
func (r CreateOrderRequest) ToDomain() (domain.Order, error) {
	o := domain.Order{
		ID:                   strings.TrimSpace(r.ID),
		RestaurantLocationID: strings.TrimSpace(r.RestaurantLocationID),
		DeliveryLocationID:   strings.TrimSpace(r.DeliveryLocationID),
		Total:                r.Total,
		PaymentMethod:        domain.PaymentCash,
		IsPremiumCustomer:    r.IsPremiumCustomer,
		IsExpress:            r.IsExpress,
		Status:               domain.StatusPending,
	}

	if strings.TrimSpace(r.PaymentMethod) != "" {
		pm, err := domain.ParsePaymentMethod(r.PaymentMethod)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.PaymentMethod = pm
	}

	for _, it := range r.Items {
		o.Items = append(o.Items, domain.OrderItem{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}

	if w := r.TimeWindow; w != nil && (w.Earliest != nil || w.Latest != nil) {
		o.TimeWindow = &domain.TimeWindow{}
		if w.Earliest != nil {
			o.TimeWindow.Earliest = *w.Earliest
		}
		if w.Latest != nil {
			o.TimeWindow.Latest = *w.Latest
		}
	}

	return o, o.Validate()
}

type SubmitOrderResponse struct {
	OrderID  string `json:"order_id"`
	Priority int    `json:"priority"`
}

type OrderResponse struct {
	ID                   string      `json:"id"`
	Items                []OrderItem `json:"items"`
	RestaurantLocationID string      `json:"restaurant_location_id,omitempty"`
	DeliveryLocationID   string      `json:"delivery_location_id"`
	TimeWindow           *TimeWindow `json:"time_window,omitempty"`
	Total                float64     `json:"total"`
	PaymentMethod        string      `json:"payment_method"`
	IsPremiumCustomer    bool        `json:"is_premium_customer"`
	IsExpress            bool        `json:"is_express"`
	Status               string      `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
}

func FromOrder(o domain.Order) OrderResponse {
	res := OrderResponse{
		ID:                   o.ID,
		Items:                make([]OrderItem, 0, len(o.Items)),
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
		res.Items = append(res.Items, OrderItem{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	if w := o.TimeWindow; w != nil {
		res.TimeWindow = &TimeWindow{}
		if !w.Earliest.IsZero() {
			e := w.Earliest
			res.TimeWindow.Earliest = &e
		}
		if !w.Latest.IsZero() {
			l := w.Latest
			res.TimeWindow.Latest = &l
		}
	}
	return res
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type QueueNextResponse struct {
	Order    OrderResponse `json:"order"`
	Priority int           `json:"priority"`
}
