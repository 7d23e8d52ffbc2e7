// Package health tracks per-credential health with circuit breakers.
//
// Rate-limit responses are handled by cooldowns in keypool; the breakers here
// only count other failures (auth errors, upstream 5xx, transport errors) so
// that a revoked or broken key is skipped by rotation until it recovers.
package health

import "time"

// Default configuration values.
const (
	DefaultFailureThreshold = 5     // consecutive failures to open circuit
	DefaultOpenDurationMS   = 60000 // 60 seconds before half-open
	DefaultHalfOpenRequests = 1     // calls allowed in half-open state
)

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled turns breakers on. Default: true
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// OpenDurationMS is how long the circuit stays open before half-open.
	OpenDurationMS int `yaml:"open_duration_ms" toml:"open_duration_ms"`

	// HalfOpenRequests is the number of calls allowed in half-open state.
	HalfOpenRequests int `yaml:"half_open_requests" toml:"half_open_requests"`
}

// IsEnabled returns whether breakers are enabled (default true).
func (c *CircuitBreakerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetFailureThreshold returns the configured failure threshold or the default.
func (c *CircuitBreakerConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// GetOpenDuration returns the open duration or the default.
func (c *CircuitBreakerConfig) GetOpenDuration() time.Duration {
	if c.OpenDurationMS <= 0 {
		return time.Duration(DefaultOpenDurationMS) * time.Millisecond
	}
	return time.Duration(c.OpenDurationMS) * time.Millisecond
}

// GetHalfOpenRequests returns the configured half-open call limit or the default.
func (c *CircuitBreakerConfig) GetHalfOpenRequests() int {
	if c.HalfOpenRequests <= 0 {
		return DefaultHalfOpenRequests
	}
	return c.HalfOpenRequests
}
