package health

// NewTestBreaker builds a breaker with explicit thresholds (for testing).
func NewTestBreaker(threshold, openMS, trials int) *CircuitBreaker {
	return NewCircuitBreaker("test-key", CircuitBreakerConfig{
		FailureThreshold: threshold,
		OpenDurationMS:   openMS,
		HalfOpenRequests: trials,
	}, nil)
}

// CircuitCount returns the number of breakers under lock (for testing).
func (t *Tracker) CircuitCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.circuits)
}
