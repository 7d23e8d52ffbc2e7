package di

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/gate"
)

// GateService wraps the acquisition gate. The mode is fixed at startup.
type GateService struct {
	Gate gate.Gate
}

// NewGate builds the gate selected by gate.mode.
func NewGate(i do.Injector) (*GateService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)
	cfg := cfgSvc.Get().Gate

	g, err := gate.New(gate.Config{
		Mode:         cfg.GetEffectiveMode(),
		LockDir:      cfg.GetEffectiveLockDir(),
		PollInterval: cfg.GetEffectivePollInterval(),
	}, poolSvc.Pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create gate: %w", err)
	}
	log.Info().Str("mode", g.Mode()).Int("keys", poolSvc.Pool.Len()).Msg("acquisition gate ready")

	// Waiters in local mode are woken by releases; a reload may add free
	// keys without any release happening.
	if local, ok := g.(*gate.Local); ok {
		cfgSvc.OnReload(func(*config.Config) error {
			local.Wake()
			return nil
		})
	}
	return &GateService{Gate: g}, nil
}
