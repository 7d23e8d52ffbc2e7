package keypool

import (
	"time"

	"github.com/samber/lo"
)

// Snapshot is an immutable view of every credential at one instant.
type Snapshot struct {
	TakenAt     time.Time         `json:"taken_at"`
	Credentials []CredentialState `json:"credentials"`
}

// Stats contains aggregate counters over a snapshot.
// Invariants: FreeKeys+BusyKeys == TotalKeys and IsFull iff
// BusyKeys == TotalKeys and TotalKeys > 0.
type Stats struct {
	TotalKeys     int   `json:"total_keys"`
	BusyKeys      int   `json:"busy_keys"`
	FreeKeys      int   `json:"free_keys"`
	CoolingKeys   int   `json:"cooling_keys"`
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
	IsFull        bool  `json:"is_full"`
}

// Stats computes aggregate counters; cooldowns are evaluated at now.
func (s Snapshot) Stats(now time.Time) Stats {
	busy := lo.CountBy(s.Credentials, func(c CredentialState) bool { return c.Busy })
	total := len(s.Credentials)
	return Stats{
		TotalKeys:     total,
		BusyKeys:      busy,
		FreeKeys:      total - busy,
		CoolingKeys:   lo.CountBy(s.Credentials, func(c CredentialState) bool { return c.CoolingDown(now) }),
		TotalRequests: lo.SumBy(s.Credentials, func(c CredentialState) int64 { return c.RequestCount }),
		TotalErrors:   lo.SumBy(s.Credentials, func(c CredentialState) int64 { return c.ErrorCount }),
		IsFull:        total > 0 && busy == total,
	}
}

// Find returns the state of the named credential.
func (s Snapshot) Find(name string) (CredentialState, bool) {
	return lo.Find(s.Credentials, func(c CredentialState) bool { return c.Name == name })
}
