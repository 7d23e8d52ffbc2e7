package keypool

import (
	"crypto/rand"
	"math/big"
	"time"
)

// RandomSelector picks a random candidate.
type RandomSelector struct{}

// NewRandomSelector creates a new random selector.
func NewRandomSelector() *RandomSelector {
	return &RandomSelector{}
}

// Select picks a random candidate.
func (s *RandomSelector) Select(candidates []*Credential) (*Credential, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates[randIntn(len(candidates))], nil
}

// Name returns the strategy name.
func (s *RandomSelector) Name() string {
	return StrategyRandom
}

// randIntn returns a value in [0, n), falling back to the clock if
// crypto/rand fails.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	if v, err := rand.Int(rand.Reader, big.NewInt(int64(n))); err == nil {
		return int(v.Int64())
	}
	return int(time.Now().UnixNano() % int64(n))
}
