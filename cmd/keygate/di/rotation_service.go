package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/rotation"
	"github.com/omarluq/keygate/internal/session"
	"github.com/omarluq/keygate/internal/tracker"
)

// RotatorService wraps the rotating caller.
type RotatorService struct {
	Rotator *rotation.Rotator
}

// SessionService wraps the per-user dispatcher.
type SessionService struct {
	Dispatcher *session.Dispatcher
}

func rotationOptions(cfg *config.Config) rotation.Options {
	return rotation.Options{
		Cooldown:    cfg.Rotation.GetEffectiveCooldown(),
		RetryDelay:  cfg.Rotation.GetEffectiveRetryDelay(),
		MaxAttempts: cfg.Rotation.GetMaxAttemptsOption().OrElse(0),
	}
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		AcquireTimeout: cfg.Gate.GetAcquireTimeoutOption(),
		Cooldown:       cfg.Rotation.GetEffectiveCooldown(),
		RetryDelay:     cfg.Rotation.GetEffectiveRetryDelay(),
		MaxRetries:     cfg.Rotation.GetEffectiveMaxRetries(),
	}
}

// NewRotator creates the rotating caller.
func NewRotator(i do.Injector) (*RotatorService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)
	upstream := do.MustInvoke[*UpstreamService](i)
	healthSvc := do.MustInvoke[*HealthTrackerService](i)

	r := rotation.New(poolSvc.Pool, upstream, healthSvc.Tracker, rotationOptions(cfgSvc.Get()))
	cfgSvc.OnReload(func(cfg *config.Config) error {
		r.SetOptions(rotationOptions(cfg))
		return nil
	})
	return &RotatorService{Rotator: r}, nil
}

// NewSessions creates the gated per-user dispatcher and its request tracker.
func NewSessions(i do.Injector) (*SessionService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)
	gateSvc := do.MustInvoke[*GateService](i)
	upstream := do.MustInvoke[*UpstreamService](i)
	healthSvc := do.MustInvoke[*HealthTrackerService](i)
	users := do.MustInvoke[*tracker.Tracker](i)

	d := session.New(gateSvc.Gate, poolSvc.Pool, upstream, users, healthSvc.Tracker, sessionOptions(cfgSvc.Get()))
	cfgSvc.OnReload(func(cfg *config.Config) error {
		d.SetOptions(sessionOptions(cfg))
		return nil
	})
	return &SessionService{Dispatcher: d}, nil
}
