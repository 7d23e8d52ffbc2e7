package health

import (
	"sync"

	"github.com/rs/zerolog"
)

// Tracker manages per-credential circuit breakers, created lazily.
type Tracker struct {
	circuits map[string]*CircuitBreaker
	logger   *zerolog.Logger
	config   CircuitBreakerConfig
	mu       sync.RWMutex
}

// NewTracker creates a new Tracker with the given configuration.
func NewTracker(cfg CircuitBreakerConfig, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		circuits: make(map[string]*CircuitBreaker),
		config:   cfg,
		logger:   logger,
	}
}

// GetOrCreateCircuit returns the breaker for a credential, creating it if necessary.
func (t *Tracker) GetOrCreateCircuit(name string) *CircuitBreaker {
	t.mu.RLock()
	cb, exists := t.circuits[name]
	t.mu.RUnlock()
	if exists {
		return cb
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cb, exists = t.circuits[name]; exists {
		return cb
	}
	cb = NewCircuitBreaker(name, t.config, t.logger)
	t.circuits[name] = cb
	return cb
}

// Usable reports whether rotation may pick the credential. Only an OPEN
// circuit makes a credential unusable; disabled trackers allow everything.
func (t *Tracker) Usable(name string) bool {
	if t == nil || !t.config.IsEnabled() {
		return true
	}
	return t.GetState(name) != StateOpen
}

// GetState returns the breaker state, StateClosed if none exists yet.
func (t *Tracker) GetState(name string) State {
	t.mu.RLock()
	cb, exists := t.circuits[name]
	t.mu.RUnlock()
	if !exists {
		return StateClosed
	}
	return cb.State()
}

// RecordSuccess records a successful call.
func (t *Tracker) RecordSuccess(name string) {
	t.record(name, nil)
}

// RecordFailure records a failed call.
func (t *Tracker) RecordFailure(name string, err error) {
	t.record(name, err)
}

func (t *Tracker) record(name string, err error) {
	if t == nil || !t.config.IsEnabled() {
		return
	}
	cb := t.GetOrCreateCircuit(name)
	recorded := cb.Report(err)

	if t.logger != nil {
		t.logger.Debug().
			Str("key_name", name).
			Str("state", cb.State().String()).
			Bool("recorded", recorded).
			AnErr("error", err).
			Msg("recorded key outcome")
	}
}

// Retain drops breakers for credentials not in names, after a reload.
func (t *Tracker) Retain(names []string) {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range t.circuits {
		if _, ok := keep[name]; !ok {
			delete(t.circuits, name)
		}
	}
}

// AllStates returns a snapshot of all circuit states.
func (t *Tracker) AllStates() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]State, len(t.circuits))
	for name, cb := range t.circuits {
		states[name] = cb.State()
	}
	return states
}
