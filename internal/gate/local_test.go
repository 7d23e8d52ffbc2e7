package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/omarluq/keygate/internal/gate"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var forever = mo.None[time.Duration]()

func within(d time.Duration) mo.Option[time.Duration] { return mo.Some(d) }

func mustAcquire(t *testing.T, g gate.Gate) *gate.Lease {
	t.Helper()
	opt, err := g.Acquire(context.Background(), within(time.Second))
	require.NoError(t, err)
	lease, ok := opt.Get()
	require.True(t, ok, "expected a lease")
	return lease
}

func TestLocalMutualExclusion(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 3)
	g := gate.NewLocal(pool)

	var holders sync.Map
	var violations atomic.Int32
	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opt, err := g.Acquire(context.Background(), forever)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			lease := opt.MustGet()
			if _, loaded := holders.LoadOrStore(lease.Name(), true); loaded {
				violations.Add(1)
			}
			time.Sleep(2 * time.Millisecond)
			holders.Delete(lease.Name())
			g.Release(lease)
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load(), "a key was held by two callers")
	status := g.Status()
	assert.Equal(t, 0, status.Busy)
	assert.Equal(t, 0, status.Waiting)
}

func TestLocalReleaseWakesWaiter(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)

	first := mustAcquire(t, g)
	assert.True(t, g.Status().IsFull)

	got := make(chan *gate.Lease, 1)
	go func() {
		opt, err := g.Acquire(context.Background(), forever)
		if err == nil {
			got <- opt.OrEmpty()
		}
	}()

	require.Eventually(t, func() bool { return g.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)
	g.Release(first)

	select {
	case lease := <-got:
		require.NotNil(t, lease)
		assert.Equal(t, first.Name(), lease.Name())
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestLocalReleaseIdempotent(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)

	first := mustAcquire(t, g)
	g.Release(first)
	g.Release(first)
	first.Release()
	g.Release(nil)

	second := mustAcquire(t, g)
	g.Release(first)
	assert.True(t, g.Status().IsFull, "stale release must not free another holder")

	g.Release(second)
	status := g.Status()
	assert.Equal(t, 1, status.Free)
	assert.Equal(t, 0, status.Busy)
}

func TestLocalStaleLeaseAfterReload(t *testing.T) {
	t.Parallel()
	pool := keypool.NewPool(keypool.Config{Name: "K"})
	pool.Initialize(keypool.MapSource{"K": "sk-old"})
	g := gate.NewLocal(pool)

	stale := mustAcquire(t, g)
	pool.Reload(keypool.MapSource{"K": "sk-new"})
	g.Wake()

	current := mustAcquire(t, g)
	assert.Equal(t, "sk-new", current.Secret())

	g.Release(stale)

	opt, err := g.Acquire(context.Background(), within(50*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, opt.IsAbsent(), "K is still held; a third caller must not get it")
	assert.Equal(t, 1, g.Status().Busy)

	g.Release(current)
	assert.Equal(t, 0, g.Status().Busy)
}

func TestLocalTimeout(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)
	mustAcquire(t, g)

	start := time.Now()
	opt, err := g.Acquire(context.Background(), within(100*time.Millisecond))
	require.NoError(t, err, "timeout is not an error")
	assert.True(t, opt.IsAbsent())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, g.Status().Waiting, "timed out waiter leaves the queue")
}

func TestLocalContextCancel(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)
	mustAcquire(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	opt, err := g.Acquire(ctx, forever)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, opt.IsAbsent())
}

func TestLocalNoCredentials(t *testing.T) {
	t.Parallel()
	pool := keypool.NewPool(keypool.Config{})
	pool.Initialize(keypool.MapSource{})
	g := gate.NewLocal(pool)

	_, err := g.Acquire(context.Background(), forever)
	require.ErrorIs(t, err, keypool.ErrNoCredentials)
	assert.Equal(t, gate.Status{Mode: gate.ModeLocal}, g.Status())
}

func TestLocalCooldownExpiryWakes(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)
	pool.MarkRateLimited("TEST_KEY_1", time.Now().Add(80*time.Millisecond))

	start := time.Now()
	opt, err := g.Acquire(context.Background(), within(2*time.Second))
	require.NoError(t, err)
	require.True(t, opt.IsPresent(), "cooldown expiry should wake the waiter")
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestLocalWakeAfterReload(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1)
	g := gate.NewLocal(pool)
	mustAcquire(t, g)

	got := make(chan string, 1)
	go func() {
		opt, err := g.Acquire(context.Background(), within(2*time.Second))
		if err == nil && opt.IsPresent() {
			got <- opt.MustGet().Name()
		}
	}()
	require.Eventually(t, func() bool { return g.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	pool.Reload(keypool.MapSource{"TEST_KEY_1": "sk-1", "TEST_KEY_2": "sk-2"})
	g.Wake()

	select {
	case name := <-got:
		assert.Equal(t, "TEST_KEY_2", name)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after reload")
	}
}

func TestLocalBurstReleaseDrainsQueue(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 3)
	g := gate.NewLocal(pool)
	held := []*gate.Lease{mustAcquire(t, g), mustAcquire(t, g), mustAcquire(t, g)}

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opt, err := g.Acquire(context.Background(), within(2*time.Second))
			if err == nil && opt.IsPresent() {
				acquired.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return g.Status().Waiting == 3 }, time.Second, 5*time.Millisecond)

	for _, l := range held {
		g.Release(l)
	}
	wg.Wait()
	assert.Equal(t, int32(3), acquired.Load())
}

func TestLocalStatusProperty(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("free + busy == total after any acquire/release sequence", prop.ForAll(
		func(keys, acquires, releases int) bool {
			pool := keypool.NewPool(keypool.Config{Name: "P"})
			src := keypool.MapSource{}
			for i := range keys {
				src["P_"+string(rune('1'+i))] = "sk-" + string(rune('a'+i))
			}
			pool.Initialize(src)
			g := gate.NewLocal(pool)

			var leases []*gate.Lease
			for range acquires {
				opt, err := g.Acquire(context.Background(), within(0))
				if err != nil || opt.IsAbsent() {
					continue
				}
				leases = append(leases, opt.MustGet())
			}
			for i := 0; i < releases && i < len(leases); i++ {
				g.Release(leases[i])
			}

			s := g.Status()
			return s.Free+s.Busy == s.Total &&
				s.IsFull == (s.Total > 0 && s.Busy == s.Total) &&
				s.Busy == len(leases)-min(releases, len(leases))
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 12),
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}
