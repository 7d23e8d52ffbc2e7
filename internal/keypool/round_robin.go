package keypool

import "sync/atomic"

// RoundRobinSelector cycles through candidates in order.
type RoundRobinSelector struct {
	index atomic.Uint64
}

// NewRoundRobinSelector creates a new round-robin selector.
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// Select picks the next candidate in round-robin order.
func (s *RoundRobinSelector) Select(candidates []*Credential) (*Credential, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	next := s.index.Add(1) - 1
	//nolint:gosec // Safe: modulo ensures result is within int range (< len(candidates))
	return candidates[int(next%uint64(len(candidates)))], nil
}

// Name returns the strategy name.
func (s *RoundRobinSelector) Name() string {
	return StrategyRoundRobin
}
