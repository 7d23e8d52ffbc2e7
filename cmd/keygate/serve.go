package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/keygate/cmd/keygate/di"
	"github.com/omarluq/keygate/internal/lifecycle"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the keygate HTTP server",
	Long: `Start the server that accepts chat completion requests and forwards
them upstream using a pooled API key.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	path := configPath()
	container, err := di.NewContainer(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to load config")
		return err
	}

	logger := di.MustInvoke[*di.LoggerService](container).Logger
	log.Logger = *logger
	zerolog.DefaultContextLogger = logger

	if err := container.HealthCheck(); err != nil {
		log.Error().Err(err).Msg("failed to initialize services")
		_ = container.Shutdown()
		return err
	}

	ctx, stop := lifecycle.ShutdownContext(cmd.Context(), logger)
	defer stop()
	return serve(ctx, container)
}

// serve runs the server until ctx is cancelled, then shuts the container
// down, which stops the server and the config watcher.
func serve(ctx context.Context, container *di.Container) error {
	cfgSvc := di.MustInvoke[*di.ConfigService](container)
	srv := di.MustInvoke[*di.ServerService](container).Server
	cfgSvc.StartWatching(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", srv.Addr()).
			Str("config", cfgSvc.Path()).
			Msg("starting keygate")
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
		if serveErr == nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	log.Info().Msg("server stopped")
	return serveErr
}
