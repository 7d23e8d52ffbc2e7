package di

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/keypool"
)

// KeyPoolService owns the credential pool. The pool keeps the naming and
// strategy it was built with; a config reload applies the new rpm_limit and
// re-reads the environment and env file so rotated or added secrets take
// effect without a restart.
type KeyPoolService struct {
	Pool   *keypool.Pool
	cfgSvc *ConfigService
}

// source layers the process environment over the optional env file.
func source(cfg *config.Config) (keypool.Source, error) {
	dotenv, err := keypool.LoadDotEnv(cfg.Keys.EnvFile)
	if err != nil {
		return nil, err
	}
	return keypool.Layered(keypool.EnvSource{}, dotenv), nil
}

// NewKeyPool discovers credentials from the environment.
func NewKeyPool(i do.Injector) (*KeyPoolService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cfg := cfgSvc.Get()

	src, err := source(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read key sources: %w", err)
	}

	pool := keypool.NewPool(keypool.Config{
		Name:     cfg.Keys.GetEffectiveName(),
		ListVar:  cfg.Keys.ListVar,
		Strategy: cfg.Keys.GetEffectiveStrategy(),
		RPMLimit: cfg.Keys.GetRPMLimitOption().OrElse(0),
	})
	pool.Initialize(src)

	svc := &KeyPoolService{Pool: pool, cfgSvc: cfgSvc}
	cfgSvc.OnReload(svc.reload)
	return svc, nil
}

func (s *KeyPoolService) reload(cfg *config.Config) error {
	src, err := source(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload API keys")
		return err
	}
	s.Pool.SetRPMLimit(cfg.Keys.GetRPMLimitOption().OrElse(0))
	before := s.Pool.Len()
	after := s.Pool.Reload(src)
	if before != after {
		log.Info().Int("old_count", before).Int("new_count", after).Msg("key pool size changed via hot-reload")
	}
	return nil
}
