package domain

import "errors"

// Sentinel errors shared by the routing and dispatch services.
// Callers match them with errors.Is; every layer wraps them with context.
var (
	ErrUnknownLocation   = errors.New("unknown location")
	ErrInvalidDistance   = errors.New("invalid distance")
	ErrUnreachable       = errors.New("destination unreachable")
	ErrUnassigned        = errors.New("order unassigned")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmpty             = errors.New("queue empty")
	ErrMiss              = errors.New("cache miss")
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("vehicle at full capacity")
)
