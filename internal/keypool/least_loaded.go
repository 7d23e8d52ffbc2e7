package keypool

import "github.com/samber/lo"

// LeastLoadedSelector picks the candidate that has served the fewest
// requests, preferring fewer errors on a tie.
type LeastLoadedSelector struct{}

// NewLeastLoadedSelector creates a new least-loaded selector.
func NewLeastLoadedSelector() *LeastLoadedSelector {
	return &LeastLoadedSelector{}
}

// Select picks the candidate with the lowest request count.
func (s *LeastLoadedSelector) Select(candidates []*Credential) (*Credential, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	// MinBy comparison: returns true if 'a' should replace 'b' as min
	return lo.MinBy(candidates, func(a, b *Credential) bool {
		if a.requestCount != b.requestCount {
			return a.requestCount < b.requestCount
		}
		return a.errorCount < b.errorCount
	}), nil
}

// Name returns the strategy name.
func (s *LeastLoadedSelector) Name() string {
	return StrategyLeastLoaded
}
