package health

import "errors"

// ErrCircuitOpen is returned when a credential's breaker rejects calls.
var ErrCircuitOpen = errors.New("health: circuit breaker is open")
