package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
)

// ConfigService holds the live configuration. Reads go through an atomic
// pointer so in-flight requests keep the config they started with.
type ConfigService struct {
	*config.Runtime
	watcher *config.Watcher
	path    string
}

// Path returns the config file path.
func (c *ConfigService) Path() string {
	return c.path
}

// OnReload registers fn to run after a reloaded config has been stored.
// It is a no-op when hot reload is unavailable.
func (c *ConfigService) OnReload(fn func(*config.Config) error) {
	if c.watcher == nil {
		return
	}
	c.watcher.OnReload(fn)
}

// StartWatching runs the file watcher until ctx is cancelled. Call it after
// every service has registered its reload callback.
func (c *ConfigService) StartWatching(ctx context.Context) {
	if c.watcher == nil {
		return
	}
	go func() {
		if err := c.watcher.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher error")
		}
	}()
	log.Info().Str("path", c.path).Msg("config file watcher started")
}

// Shutdown implements do.Shutdowner.
func (c *ConfigService) Shutdown() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// NewConfig loads and validates the config file and prepares a watcher.
// Watcher creation failure only disables hot reload.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	svc := &ConfigService{Runtime: config.NewRuntime(cfg), path: path}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config watcher creation failed, hot-reload disabled")
		return svc, nil
	}
	svc.watcher = watcher
	// First callback: later ones observe the new config through Get.
	watcher.OnReload(func(newCfg *config.Config) error {
		svc.Store(newCfg)
		log.Info().Str("path", path).Msg("config hot-reloaded successfully")
		return nil
	})
	return svc, nil
}
