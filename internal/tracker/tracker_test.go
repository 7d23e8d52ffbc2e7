package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omarluq/keygate/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandle records cancellation and can fail on Cancel.
type stubHandle struct {
	err       error
	cancelled int
	done      bool
	mu        sync.Mutex
}

func (h *stubHandle) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.cancelled++
	h.done = true
	return nil
}

func (h *stubHandle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func TestRegisterSupersedes(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	h1 := tracker.NewTask(context.Background())
	h2 := tracker.NewTask(context.Background())

	tr.Register("u1", h1, "")
	assert.True(t, tr.IsActive("u1"))

	tr.Register("u1", h2, "K_1")
	assert.True(t, h1.Done(), "old handle cancelled")
	assert.True(t, h1.Superseded())
	require.ErrorIs(t, context.Cause(h1.Context()), tracker.ErrSuperseded)
	assert.False(t, h2.Done())
	assert.True(t, tr.IsActive("u1"))

	entry, ok := tr.Get("u1")
	require.True(t, ok)
	assert.Same(t, h2, entry.Handle.(*tracker.Task))
	assert.Equal(t, "K_1", entry.Credential)
}

func TestRegisterSameHandleTwice(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	h := &stubHandle{}
	tr.Register("u1", h, "")
	tr.Register("u1", h, "")
	assert.Zero(t, h.cancelled)
}

func TestRegisterCompletedPredecessor(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	h1 := tracker.NewTask(context.Background())
	h1.Complete()

	tr.Register("u1", h1, "")
	assert.False(t, tr.IsActive("u1"), "completed handle is not active")
	tr.Register("u1", tracker.NewTask(context.Background()), "")
	assert.False(t, h1.Superseded(), "finished handles are not cancelled")
}

func TestUnregisterAndFinish(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	h1 := tracker.NewTask(context.Background())
	h2 := tracker.NewTask(context.Background())

	tr.Register("u1", h1, "")
	tr.Register("u1", h2, "")

	assert.False(t, tr.Finish("u1", h1), "superseded call must not remove its successor")
	assert.True(t, tr.IsActive("u1"))
	assert.True(t, tr.Finish("u1", h2))
	assert.False(t, tr.IsActive("u1"))

	tr.Register("u2", h1, "")
	tr.Unregister("u2")
	tr.Unregister("u2")
	_, ok := tr.Get("u2")
	assert.False(t, ok)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	t.Run("cancels active handle", func(t *testing.T) {
		t.Parallel()
		tr := tracker.New()
		h := tracker.NewTask(context.Background())
		tr.Register("u1", h, "")

		assert.True(t, tr.Cancel("u1"))
		assert.True(t, h.Done())
		assert.False(t, tr.IsActive("u1"))
		assert.False(t, tr.Cancel("u1"), "nothing left to cancel")
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		assert.False(t, tracker.New().Cancel("nobody"))
	})

	t.Run("cancel error reports false", func(t *testing.T) {
		t.Parallel()
		tr := tracker.New()
		tr.Register("u1", &stubHandle{err: errors.New("boom")}, "")
		assert.False(t, tr.Cancel("u1"))
	})

	t.Run("completed task ignores cancel", func(t *testing.T) {
		t.Parallel()
		h := tracker.NewTask(context.Background())
		h.Complete()
		require.NoError(t, h.Cancel())
		assert.False(t, h.Superseded())
	})
}

func TestBind(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	h1 := tracker.NewTask(context.Background())
	h2 := tracker.NewTask(context.Background())
	tr.Register("u1", h1, "")
	tr.Register("u1", h2, "")

	leased := time.Now()
	tr.Bind("u1", h1, "K_1", leased)
	entry, _ := tr.Get("u1")
	assert.Empty(t, entry.Credential, "stale handle cannot bind")
	assert.True(t, entry.BoundAt.IsZero())

	tr.Bind("u1", h2, "K_2", leased)
	entry, _ = tr.Get("u1")
	assert.Equal(t, "K_2", entry.Credential)
	assert.Equal(t, leased, entry.BoundAt)
}

func TestRegisterUsesTaskStartTime(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	task := tracker.NewTask(context.Background())
	time.Sleep(5 * time.Millisecond)
	tr.Register("u1", task, "")

	entry, ok := tr.Get("u1")
	require.True(t, ok)
	assert.Equal(t, task.CreatedAt(), entry.CreatedAt)

	tr.Register("u2", &stubHandle{}, "")
	entry, _ = tr.Get("u2")
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestCancelRacesCompletion(t *testing.T) {
	t.Parallel()
	for range 200 {
		tr := tracker.New()
		task := tracker.NewTask(context.Background())
		tr.Register("u1", task, "")

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			tr.Cancel("u1")
		}()
		go func() {
			defer wg.Done()
			<-start
			task.Complete()
		}()
		go func() {
			defer wg.Done()
			<-start
			tr.Finish("u1", task)
		}()
		close(start)
		wg.Wait()

		require.True(t, task.Done())
		cause := context.Cause(task.Context())
		require.True(t, errors.Is(cause, tracker.ErrSuperseded) || errors.Is(cause, context.Canceled), "cause = %v", cause)
		assert.False(t, tr.IsActive("u1"))
		assert.False(t, tr.Cancel("u1"))
	}
}

func TestConcurrentRegisterLeavesOneActive(t *testing.T) {
	t.Parallel()
	tr := tracker.New()
	tasks := make([]*tracker.Task, 50)
	for i := range tasks {
		tasks[i] = tracker.NewTask(context.Background())
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Register("u1", task, "")
		}()
	}
	wg.Wait()

	live := 0
	for _, task := range tasks {
		if !task.Done() {
			live++
		}
	}
	assert.Equal(t, 1, live, "exactly one registration survives")
	assert.Equal(t, 1, tr.ActiveCount())
}
