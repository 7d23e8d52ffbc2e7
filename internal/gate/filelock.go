package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/omarluq/keygate/internal/keypool"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// ErrFileLockUnsupported is returned on platforms without flock.
var ErrFileLockUnsupported = errors.New("gate: file lock mode is not supported on this platform")

// FileLock is the cross-process gate. Each credential maps to
// <dir>/<name>.lock; holding an exclusive advisory lock on that file is
// holding the credential. Waiters poll the whole set in order.
type FileLock struct {
	pool    *keypool.Pool
	dir     string
	poll    time.Duration
	waiting atomic.Int64
}

// NewFileLock creates the lock directory and returns the gate.
func NewFileLock(pool *keypool.Pool, dir string, poll time.Duration) (*FileLock, error) {
	if !flockSupported {
		return nil, ErrFileLockUnsupported
	}
	dir = lo.CoalesceOrEmpty(dir, DefaultLockDir)
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("gate: failed to create lock dir %s: %w", dir, err)
	}
	log.Info().
		Str("lock_dir", dir).
		Dur("poll_interval", poll).
		Msg("Using cross-process key locks")
	return &FileLock{pool: pool, dir: dir, poll: poll}, nil
}

// Mode implements Gate.
func (g *FileLock) Mode() string { return ModeFileLock }

func (g *FileLock) lockPath(name string) string {
	return filepath.Join(g.dir, name+".lock")
}

// Acquire implements Gate.
func (g *FileLock) Acquire(ctx context.Context, timeout mo.Option[time.Duration]) (mo.Option[*Lease], error) {
	if g.pool.Len() == 0 {
		return mo.None[*Lease](), keypool.ErrNoCredentials
	}

	var expired <-chan time.Time
	if d, ok := timeout.Get(); ok {
		t := time.NewTimer(d)
		defer t.Stop()
		expired = t.C
	}

	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		lease, err := g.scan()
		if err != nil {
			return mo.None[*Lease](), err
		}
		if lease != nil {
			return mo.Some(lease), nil
		}

		select {
		case <-ticker.C:
		case <-expired:
			return mo.None[*Lease](), nil
		case <-ctx.Done():
			return mo.None[*Lease](), ctx.Err()
		}
	}
}

// scan makes one pass over every credential, skipping those cooling down.
func (g *FileLock) scan() (*Lease, error) {
	for _, cred := range g.pool.Credentials() {
		name := cred.Name()
		if g.pool.CoolingDown(name) {
			continue
		}
		f, ok, err := tryLock(g.lockPath(name))
		if err != nil {
			return nil, fmt.Errorf("gate: lock %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if _, err := g.pool.Claim(name); err != nil {
			if uerr := unlock(f); uerr != nil {
				log.Warn().Err(uerr).Str("key_name", name).Msg("Failed to drop key lock")
			}
			continue
		}
		log.Debug().
			Str("key_name", name).
			Str("key_id", cred.ID()).
			Msg("Acquired key lock")
		return newLease(g, cred, func() error { return unlock(f) }), nil
	}
	return nil, nil
}

// Release implements Gate.
func (g *FileLock) Release(lease *Lease) {
	if lease == nil || !lease.markReleased() {
		log.Debug().Msg("Ignoring repeated key release")
		return
	}
	if lease.unlock != nil {
		if err := lease.unlock(); err != nil {
			log.Warn().Err(err).Str("key_name", lease.Name()).Msg("Failed to release key lock")
		}
	}
	g.pool.Release(lease.cred)
}

// Status implements Gate. Credentials not held by this process are checked
// with a non-blocking lock that is dropped immediately.
func (g *FileLock) Status() Status {
	snap := g.pool.Snapshot()
	busy := 0
	for _, c := range snap.Credentials {
		if c.Busy {
			busy++
			continue
		}
		f, ok, err := tryLock(g.lockPath(c.Name))
		if err != nil {
			log.Debug().Err(err).Str("key_name", c.Name).Msg("Failed to check key lock")
			continue
		}
		if !ok {
			busy++
			continue
		}
		if err := unlock(f); err != nil {
			log.Debug().Err(err).Str("key_name", c.Name).Msg("Failed to drop check lock")
		}
	}
	return newStatus(ModeFileLock, len(snap.Credentials), busy, int(g.waiting.Load()))
}
