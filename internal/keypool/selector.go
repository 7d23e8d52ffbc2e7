package keypool

import (
	"errors"
	"fmt"
)

// Selector chooses one credential among free, non-cooling candidates.
// Select is always called with the pool mutex held.
type Selector interface {
	// Select returns one of candidates. Returns ErrNoCandidates if empty.
	Select(candidates []*Credential) (*Credential, error)

	// Name returns the strategy name for logging and configuration.
	Name() string
}

// Common errors returned by the pool and its selectors.
var (
	// ErrNoCredentials means the pool was initialized with zero credentials.
	// It is a configuration error, surfaced on every acquisition.
	ErrNoCredentials = errors.New("keypool: no API keys configured")

	// ErrNoCandidates is returned by a Selector given an empty slice.
	ErrNoCandidates = errors.New("keypool: no candidate keys")

	// ErrUnknownCredential is returned for a name not in the pool.
	ErrUnknownCredential = errors.New("keypool: unknown credential")
)

// Strategy constants for configuration.
const (
	StrategyRoundRobin  = "round_robin"
	StrategyLeastLoaded = "least_loaded"
	StrategyRandom      = "random"
)

// NewSelector returns the Selector for strategy. An empty strategy selects
// round robin.
func NewSelector(strategy string) (Selector, error) {
	switch strategy {
	case StrategyRoundRobin, "":
		return NewRoundRobinSelector(), nil
	case StrategyLeastLoaded:
		return NewLeastLoadedSelector(), nil
	case StrategyRandom:
		return NewRandomSelector(), nil
	default:
		return nil, fmt.Errorf("keypool: unknown strategy %q", strategy)
	}
}
