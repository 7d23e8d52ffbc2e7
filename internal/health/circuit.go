package health

import (
	"context"
	"errors"

	"github.com/omarluq/keygate/internal/ratelimit"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// CircuitBreaker wraps a gobreaker TwoStepCircuitBreaker for one credential.
type CircuitBreaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	name string
}

// NewCircuitBreaker creates a breaker named after the credential.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zerolog.Logger) *CircuitBreaker {
	failureThreshold := uint32(cfg.GetFailureThreshold()) //nolint:gosec // getter never returns negative

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.GetHalfOpenRequests()), //nolint:gosec // getter never returns negative
		Timeout:     cfg.GetOpenDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("key_name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("key circuit state change")
		},
		IsSuccessful: isSuccessful,
	}

	return &CircuitBreaker{
		cb:   gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
		name: name,
	}
}

// isSuccessful treats cancellation and rate limiting as neutral: neither
// says the key itself is broken.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		ratelimit.IsRateLimited(err)
}

// Allow checks if a call is allowed through the breaker.
func (c *CircuitBreaker) Allow() (done func(err error), err error) {
	d, err := c.cb.Allow()
	if err != nil {
		return nil, ErrCircuitOpen
	}
	return d, nil
}

// State returns the current circuit breaker state.
func (c *CircuitBreaker) State() State {
	return c.cb.State()
}

// Name returns the credential name.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Report records the outcome of one call. It returns false when the breaker
// is open and the outcome could not be recorded.
func (c *CircuitBreaker) Report(err error) bool {
	done, allowErr := c.Allow()
	if allowErr != nil {
		return false
	}
	done(err)
	return true
}
