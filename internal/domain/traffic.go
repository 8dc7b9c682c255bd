package domain

import (
	"fmt"
	"strings"
	"time"
)

// Observed congestion on an edge.
type TrafficLevel string

const (
	TrafficLight    TrafficLevel = "light"
	TrafficModerate TrafficLevel = "moderate"
	TrafficHeavy    TrafficLevel = "heavy"
)

var trafficMultipliers = map[TrafficLevel]float64{
	TrafficLight:    1.2,
	TrafficModerate: 1.5,
	TrafficHeavy:    2.0,
}

// Multiplier returns the weight factor for the level, 1.0 for unknown levels.
func (l TrafficLevel) Multiplier() float64 {
	if m, ok := trafficMultipliers[l]; ok {
		return m
	}
	return 1.0
}

func ParseTrafficLevel(s string) (TrafficLevel, error) {
	l := TrafficLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := trafficMultipliers[l]; !ok {
		return "", fmt.Errorf("parse traffic level: unsupported level %q", s)
	}
	return l, nil
}

// A single timestamped congestion reading.
type TrafficObservation struct {
	Level      TrafficLevel
	ObservedAt time.Time
}
