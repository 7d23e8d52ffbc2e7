package keypool_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/omarluq/keygate/internal/keypool"
)

// Property-based tests for the pool counters.

func TestPoolStatsArithmeticProperty(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("free + busy == total and is_full iff busy == total > 0", prop.ForAll(
		func(keyCount, claims, releases int) bool {
			pool := keypool.NewPool(keypool.Config{})
			pool.Initialize(newTestSource(keyCount))

			var claimed []*keypool.Credential
			for range claims {
				cred, _, err := pool.TryClaim()
				if err != nil {
					return keyCount == 0
				}
				if cred != nil {
					claimed = append(claimed, cred)
				}
			}
			for i := 0; i < releases && i < len(claimed); i++ {
				pool.Release(claimed[i])
			}

			stats := pool.Stats()
			if stats.FreeKeys+stats.BusyKeys != stats.TotalKeys {
				return false
			}
			return stats.IsFull == (stats.TotalKeys > 0 && stats.BusyKeys == stats.TotalKeys)
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 15),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}

func TestPoolClaimUniquenessProperty(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a key is never claimed twice without release", prop.ForAll(
		func(keyCount int) bool {
			pool := keypool.NewPool(keypool.Config{Strategy: keypool.StrategyRandom})
			pool.Initialize(newTestSource(keyCount))

			seen := map[string]bool{}
			for range keyCount * 2 {
				cred, _, err := pool.TryClaim()
				if err != nil {
					return false
				}
				if cred == nil {
					break
				}
				if seen[cred.Name()] {
					return false
				}
				seen[cred.Name()] = true
			}
			return len(seen) == keyCount
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
