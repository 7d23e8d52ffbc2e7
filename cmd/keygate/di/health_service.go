package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/health"
)

// HealthTrackerService wraps the per-credential circuit breakers.
type HealthTrackerService struct {
	Tracker *health.Tracker
}

// NewHealthTracker creates the tracker from configuration. Breakers for
// credentials removed by a reload are dropped.
func NewHealthTracker(i do.Injector) (*HealthTrackerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)

	tracker := health.NewTracker(cfgSvc.Get().Health.CircuitBreaker, loggerSvc.Logger)
	cfgSvc.OnReload(func(*config.Config) error {
		tracker.Retain(poolSvc.Pool.Names())
		return nil
	})
	return &HealthTrackerService{Tracker: tracker}, nil
}
