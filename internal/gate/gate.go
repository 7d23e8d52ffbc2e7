// Package gate provides exclusive, queued acquisition of pool credentials.
//
// Two implementations share the Gate interface. Local serializes callers in
// one process with a FIFO wake queue; FileLock uses one OS advisory lock file
// per credential so that several processes sharing the same keys never use a
// key concurrently.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omarluq/keygate/internal/keypool"
	"github.com/samber/mo"
)

// Modes.
const (
	ModeLocal    = "local"
	ModeFileLock = "file_lock"
)

// Defaults.
const (
	DefaultLockDir      = ".api_key_locks"
	DefaultPollInterval = 200 * time.Millisecond

	// perRequestEstimate is the assumed duration of one upstream call.
	perRequestEstimate = 5 * time.Second
)

// Gate hands out exclusive credential leases.
type Gate interface {
	// Acquire blocks until a credential is free. A None timeout waits
	// forever. When a bounded timeout elapses Acquire returns None and a nil
	// error. Errors are keypool.ErrNoCredentials, ctx.Err() or lock I/O.
	Acquire(ctx context.Context, timeout mo.Option[time.Duration]) (mo.Option[*Lease], error)

	// Release returns the lease's credential. Safe to call more than once.
	Release(lease *Lease)

	// Status reports occupancy.
	Status() Status

	// Mode returns ModeLocal or ModeFileLock.
	Mode() string
}

// Status is a point-in-time occupancy report.
// Invariants: Free+Busy == Total; IsFull iff Busy == Total and Total > 0.
type Status struct {
	Mode    string `json:"mode"`
	Total   int    `json:"total_keys"`
	Busy    int    `json:"busy_keys"`
	Free    int    `json:"free_keys"`
	Waiting int    `json:"waiting"`
	IsFull  bool   `json:"is_full"`
}

func newStatus(mode string, total, busy, waiting int) Status {
	return Status{
		Mode:    mode,
		Total:   total,
		Busy:    busy,
		Free:    total - busy,
		Waiting: waiting,
		IsFull:  total > 0 && busy == total,
	}
}

// EstimateWait is a rough queueing estimate: zero when nothing is busy and
// nobody waits, otherwise one request duration per caller ahead plus one.
func EstimateWait(s Status) time.Duration {
	if s.Busy == 0 && s.Waiting == 0 {
		return 0
	}
	return time.Duration(s.Waiting+1) * perRequestEstimate
}

// Lease is exclusive use of one credential until released.
type Lease struct {
	acquiredAt time.Time
	owner      Gate
	cred       *keypool.Credential
	unlock     func() error
	released   atomic.Bool
}

func newLease(owner Gate, cred *keypool.Credential, unlock func() error) *Lease {
	return &Lease{
		owner:      owner,
		cred:       cred,
		unlock:     unlock,
		acquiredAt: time.Now(),
	}
}

// Name returns the credential name.
func (l *Lease) Name() string { return l.cred.Name() }

// Secret returns the API key.
func (l *Lease) Secret() string { return l.cred.Secret() }

// ID returns the credential's log identifier.
func (l *Lease) ID() string { return l.cred.ID() }

// AcquiredAt returns when the lease was granted.
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }

// Release is shorthand for releasing through the owning gate.
func (l *Lease) Release() {
	l.owner.Release(l)
}

// markReleased reports whether this call is the first release.
func (l *Lease) markReleased() bool {
	return l.released.CompareAndSwap(false, true)
}

// Config selects and tunes a Gate.
type Config struct {
	Mode         string
	LockDir      string
	PollInterval time.Duration
}

// New builds the Gate selected by cfg.Mode. An empty mode is local.
func New(cfg Config, pool *keypool.Pool) (Gate, error) {
	switch cfg.Mode {
	case ModeLocal, "":
		return NewLocal(pool), nil
	case ModeFileLock:
		return NewFileLock(pool, cfg.LockDir, cfg.PollInterval)
	default:
		return nil, fmt.Errorf("gate: unknown mode %q", cfg.Mode)
	}
}
