package domain

import (
	"fmt"
	"strings"
)

// Role a location plays in the delivery network.
type LocationKind string

const (
	KindRestaurant    LocationKind = "restaurant"
	KindCustomer      LocationKind = "customer"
	KindVehicleOrigin LocationKind = "vehicle-origin"
)

// ParseLocationKind accepts the canonical names case-insensitively.
func ParseLocationKind(s string) (LocationKind, error) {
	switch k := LocationKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRestaurant, KindCustomer, KindVehicleOrigin:
		return k, nil
	default:
		return "", fmt.Errorf("parse location kind: unsupported kind %q", s)
	}
}

// Represents a geocoded node of the delivery graph.
// Only vehicle-origin locations change position after creation.
type Location struct {
	ID     string
	Name   string
	Coords Coordinates
	Kind   LocationKind
}

// Represents a bidirectional road segment between two locations.
// A and B are stored in canonical order (A < B) so the edge key is stable.
type Edge struct {
	A              string
	B              string
	BaseDistanceKm float64
	Traffic        *TrafficObservation
}

// Key returns the canonical identifier of the edge.
func (e Edge) Key() string { return EdgeKey(e.A, e.B) }

// Other returns the endpoint opposite to id.
func (e Edge) Other(id string) string {
	if id == e.A {
		return e.B
	}
	return e.A
}

// EdgeKey builds the order-independent key for the edge between a and b.
func EdgeKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
