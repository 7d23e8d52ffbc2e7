//go:build unix

package gate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omarluq/keygate/internal/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two FileLock gates over separate pools stand in for two processes: flock
// conflicts between distinct open file descriptions even in one process.
func newFileLockPair(t *testing.T, keys int) (*gate.FileLock, *gate.FileLock) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "locks")
	a, err := gate.NewFileLock(newPool(t, keys), dir, 10*time.Millisecond)
	require.NoError(t, err)
	b, err := gate.NewFileLock(newPool(t, keys), dir, 10*time.Millisecond)
	require.NoError(t, err)
	return a, b
}

func TestFileLockCreatesLockFiles(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "locks")
	g, err := gate.NewFileLock(newPool(t, 1), dir, 0)
	require.NoError(t, err)

	lease := mustAcquire(t, g)
	defer g.Release(lease)

	_, err = os.Stat(filepath.Join(dir, "TEST_KEY_1.lock"))
	require.NoError(t, err)
}

func TestFileLockCrossProcessExclusion(t *testing.T) {
	t.Parallel()
	a, b := newFileLockPair(t, 2)

	l1 := mustAcquire(t, a)
	l2 := mustAcquire(t, a)
	assert.NotEqual(t, l1.Name(), l2.Name())

	status := b.Status()
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Busy, "locks held elsewhere count as busy")
	assert.True(t, status.IsFull)

	start := time.Now()
	opt, err := b.Acquire(context.Background(), within(100*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, opt.IsAbsent())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	a.Release(l2)
	lease := mustAcquire(t, b)
	assert.Equal(t, l2.Name(), lease.Name())

	b.Release(lease)
	a.Release(l1)
	assert.Equal(t, 0, b.Status().Busy)
}

func TestFileLockWaiterPicksUpRelease(t *testing.T) {
	t.Parallel()
	a, b := newFileLockPair(t, 1)
	held := mustAcquire(t, a)

	got := make(chan string, 1)
	go func() {
		opt, err := b.Acquire(context.Background(), forever)
		if err == nil && opt.IsPresent() {
			got <- opt.MustGet().Name()
		}
	}()
	require.Eventually(t, func() bool { return b.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	a.Release(held)
	select {
	case name := <-got:
		assert.Equal(t, held.Name(), name)
	case <-time.After(time.Second):
		t.Fatal("polling waiter did not pick up the released lock")
	}
}

func TestFileLockReleaseIdempotent(t *testing.T) {
	t.Parallel()
	a, b := newFileLockPair(t, 1)

	lease := mustAcquire(t, a)
	a.Release(lease)
	a.Release(lease)

	other := mustAcquire(t, b)
	a.Release(lease)
	assert.True(t, a.Status().IsFull, "stale release must not unlock another holder")
	b.Release(other)
}

func TestFileLockSkipsCoolingKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pool := newPool(t, 2)
	g, err := gate.NewFileLock(pool, dir, 10*time.Millisecond)
	require.NoError(t, err)

	pool.MarkRateLimited("TEST_KEY_1", time.Now().Add(time.Minute))
	lease := mustAcquire(t, g)
	assert.Equal(t, "TEST_KEY_2", lease.Name())
	g.Release(lease)
}

func TestFileLockContextCancel(t *testing.T) {
	t.Parallel()
	a, b := newFileLockPair(t, 1)
	mustAcquire(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := b.Acquire(ctx, forever)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
