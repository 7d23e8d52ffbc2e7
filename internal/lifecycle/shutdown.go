// Package lifecycle turns process signals into a shutdown stream.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/samber/ro"
)

// ShutdownSignals are the OS signals that trigger graceful shutdown.
var ShutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Signals emits the first of the given signals and completes. Without a
// signal it errors with the subscriber's context error.
func Signals(signals ...os.Signal) ro.Observable[os.Signal] {
	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)

		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			}
		}()

		return func() {
			signal.Stop(ch)
		}
	})
}

// ShutdownContext returns a context cancelled by the first shutdown signal
// or by parent. The returned cancel releases the signal handler.
func ShutdownContext(parent context.Context, logger *zerolog.Logger, signals ...os.Signal) (context.Context, context.CancelFunc) {
	if len(signals) == 0 {
		signals = ShutdownSignals
	}
	ctx, cancel := context.WithCancel(parent)

	sub := Signals(signals...).SubscribeWithContext(ctx, ro.OnNextWithContext(func(_ context.Context, sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}))

	return ctx, func() {
		cancel()
		sub.Unsubscribe()
	}
}
