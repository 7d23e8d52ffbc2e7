package di

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/server"
)

// ConcurrencyService wraps the in-flight request limiter.
type ConcurrencyService struct {
	Limiter *server.ConcurrencyLimiter
}

func concurrencyLimit(cfg *config.Config) int64 {
	return int64(cfg.Server.GetMaxConcurrentOption().OrElse(0))
}

// NewConcurrencyService creates the limiter and keeps it in step with
// server.max_concurrent.
func NewConcurrencyService(i do.Injector) (*ConcurrencyService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	limiter := server.NewConcurrencyLimiter(concurrencyLimit(cfgSvc.Get()))

	cfgSvc.OnReload(func(cfg *config.Config) error {
		newLimit := concurrencyLimit(cfg)
		if oldLimit := limiter.Limit(); newLimit != oldLimit {
			limiter.SetLimit(newLimit)
			log.Info().
				Int64("old_limit", oldLimit).
				Int64("new_limit", newLimit).
				Msg("concurrency limit updated via hot-reload")
		}
		return nil
	})
	return &ConcurrencyService{Limiter: limiter}, nil
}
