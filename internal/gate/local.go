package gate

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/omarluq/keygate/internal/keypool"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// waiter is one parked Acquire. ready holds at most one wake token.
type waiter struct {
	ready chan struct{}
	elem  *list.Element
}

// Local is the in-process gate. Claims and releases happen under mu so a
// release can never slip between a failed claim and parking.
type Local struct {
	pool    *keypool.Pool
	waiters *list.List
	timer   *time.Timer
	timerAt time.Time
	mu      sync.Mutex
}

// NewLocal creates an in-process gate over pool.
func NewLocal(pool *keypool.Pool) *Local {
	return &Local{
		pool:    pool,
		waiters: list.New(),
	}
}

// Mode implements Gate.
func (g *Local) Mode() string { return ModeLocal }

// Acquire implements Gate.
func (g *Local) Acquire(ctx context.Context, timeout mo.Option[time.Duration]) (mo.Option[*Lease], error) {
	var expired <-chan time.Time
	if d, ok := timeout.Get(); ok {
		t := time.NewTimer(d)
		defer t.Stop()
		expired = t.C
	}

	var w *waiter
	for {
		g.mu.Lock()
		cred, retryAt, err := g.pool.TryClaim()
		if err != nil {
			g.leaveLocked(w, false)
			g.mu.Unlock()
			return mo.None[*Lease](), err
		}
		if cred != nil {
			// A woken waiter passes the baton so a burst of releases, a
			// cooldown expiry or a reload drains the queue.
			g.leaveLocked(w, w != nil)
			g.mu.Unlock()
			log.Debug().
				Str("key_name", cred.Name()).
				Str("key_id", cred.ID()).
				Msg("Acquired key")
			return mo.Some(newLease(g, cred, nil)), nil
		}
		if w == nil {
			w = &waiter{ready: make(chan struct{}, 1)}
			w.elem = g.waiters.PushBack(w)
		}
		if !retryAt.IsZero() {
			g.scheduleWakeLocked(retryAt)
		}
		g.mu.Unlock()

		select {
		case <-w.ready:
		case <-expired:
			g.abandon(w)
			return mo.None[*Lease](), nil
		case <-ctx.Done():
			g.abandon(w)
			return mo.None[*Lease](), ctx.Err()
		}
	}
}

// Release implements Gate. It wakes exactly one waiter.
func (g *Local) Release(lease *Lease) {
	if lease == nil || !lease.markReleased() {
		log.Debug().Msg("Ignoring repeated key release")
		return
	}

	g.mu.Lock()
	changed := g.pool.Release(lease.cred)
	g.wakeOneLocked()
	g.mu.Unlock()

	if !changed {
		log.Debug().Str("key_name", lease.Name()).Msg("Released key was replaced or removed from the pool")
	}
}

// Wake nudges the queue after the pool changed outside the gate, e.g. on a
// credential reload.
func (g *Local) Wake() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wakeOneLocked()
}

// Status implements Gate.
func (g *Local) Status() Status {
	stats := g.pool.Stats()
	g.mu.Lock()
	waiting := g.waiters.Len()
	g.mu.Unlock()
	return newStatus(ModeLocal, stats.TotalKeys, stats.BusyKeys, waiting)
}

func (g *Local) abandon(w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(w, false)
}

// leaveLocked dequeues w. A wake token w received but did not use is handed
// to the next waiter.
func (g *Local) leaveLocked(w *waiter, passOn bool) {
	if w == nil {
		return
	}
	g.waiters.Remove(w.elem)
	select {
	case <-w.ready:
		passOn = true
	default:
	}
	if passOn {
		g.wakeOneLocked()
	}
}

// wakeOneLocked signals the oldest waiter that holds no token yet.
func (g *Local) wakeOneLocked() {
	for e := g.waiters.Front(); e != nil; e = e.Next() {
		w, ok := e.Value.(*waiter)
		if !ok {
			continue
		}
		select {
		case w.ready <- struct{}{}:
			return
		default:
		}
	}
}

// scheduleWakeLocked arranges a wake when the earliest cooldown ends.
func (g *Local) scheduleWakeLocked(at time.Time) {
	if g.timer != nil && !g.timerAt.After(at) {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timerAt = at
	g.timer = time.AfterFunc(time.Until(at), func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.timerAt.Equal(at) {
			g.timer = nil
			g.timerAt = time.Time{}
		}
		g.wakeOneLocked()
	})
}
