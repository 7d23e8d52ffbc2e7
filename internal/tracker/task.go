// Package tracker enforces at most one in-flight call per user. Registering
// a new call for a user cancels the previous one.
package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrSuperseded is the cancellation cause of a call replaced by a newer one.
var ErrSuperseded = errors.New("tracker: request superseded by a newer request")

// Handle is an in-flight call that can be cancelled.
type Handle interface {
	// Cancel requests cancellation. Cancelling a finished handle is a no-op.
	Cancel() error

	// Done reports whether the call has finished or been cancelled.
	Done() bool
}

// Task is the Handle used by keygate: a cancellable context with an id.
type Task struct {
	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelCauseFunc
	id        string
	completed atomic.Bool
}

// NewTask derives a cancellable context from parent.
func NewTask(parent context.Context) *Task {
	ctx, cancel := context.WithCancelCause(parent)
	return &Task{
		id:        uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// CreatedAt returns when the task started.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Context is cancelled with ErrSuperseded when the task is cancelled.
func (t *Task) Context() context.Context { return t.ctx }

// Cancel implements Handle.
func (t *Task) Cancel() error {
	if t.completed.Load() {
		return nil
	}
	t.cancel(ErrSuperseded)
	return nil
}

// Complete marks the task finished and releases its context.
func (t *Task) Complete() {
	t.completed.Store(true)
	t.cancel(context.Canceled)
}

// Done implements Handle.
func (t *Task) Done() bool {
	return t.completed.Load() || t.ctx.Err() != nil
}

// Superseded reports whether the task was cancelled by Cancel.
func (t *Task) Superseded() bool {
	return errors.Is(context.Cause(t.ctx), ErrSuperseded)
}
