package ports

import "time"

// Event emitted when a delivery changes.
type DeliveryEvent struct {
	Type       string         `json:"type"`
	DeliveryID string         `json:"delivery_id"`
	At         time.Time      `json:"at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Port: fan-out of delivery events to live subscribers.
type EventPublisher interface {
	Publish(deliveryID string, evt DeliveryEvent)
}

// Port: EventPublisher that also supports per-delivery subscriptions.
type EventBroker interface {
	EventPublisher
	Subscribe(deliveryID string) chan DeliveryEvent
	Unsubscribe(deliveryID string, ch chan DeliveryEvent)
}
