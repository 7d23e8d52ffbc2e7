package lifecycle_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/omarluq/keygate/internal/lifecycle"
)

func TestShutdownSignals(t *testing.T) {
	t.Parallel()
	assert.Contains(t, lifecycle.ShutdownSignals, syscall.SIGINT)
	assert.Contains(t, lifecycle.ShutdownSignals, syscall.SIGTERM)
}

// Not parallel: delivers a real signal to the test process.
func TestShutdownContextCancelledBySignal(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := lifecycle.ShutdownContext(context.Background(), &logger, syscall.SIGUSR1)
	defer cancel()

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by signal")
	}
}

func TestShutdownContextFollowsParent(t *testing.T) {
	t.Parallel()
	logger := zerolog.Nop()
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := lifecycle.ShutdownContext(parent, &logger, syscall.SIGUSR2)
	defer cancel()

	assert.NoError(t, ctx.Err())
	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with parent")
	}
}

func TestShutdownContextCancelReleases(t *testing.T) {
	t.Parallel()
	logger := zerolog.Nop()
	ctx, cancel := lifecycle.ShutdownContext(context.Background(), &logger, syscall.SIGUSR2)
	cancel()
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
