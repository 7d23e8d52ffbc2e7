package di

import (
	"context"
	"sync/atomic"

	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/chat"
	"github.com/omarluq/keygate/internal/config"
)

// UpstreamService is a chat.Completer whose client is rebuilt when the
// upstream section of the config changes.
type UpstreamService struct {
	client atomic.Pointer[chat.Client]
}

func newClient(cfg *config.UpstreamConfig) *chat.Client {
	return chat.NewClient(cfg.GetEffectiveBaseURL(), cfg.GetEffectiveTimeout(), chat.Defaults{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Model:       cfg.GetEffectiveModel(),
		Thinking:    cfg.GetEffectiveThinking(),
		MaxTokens:   cfg.GetEffectiveMaxTokens(),
	}, nil)
}

// NewUpstream creates the upstream client.
func NewUpstream(i do.Injector) (*UpstreamService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	svc := &UpstreamService{}
	svc.client.Store(newClient(&cfgSvc.Get().Upstream))
	cfgSvc.OnReload(func(cfg *config.Config) error {
		svc.client.Store(newClient(&cfg.Upstream))
		return nil
	})
	return svc, nil
}

// Complete implements chat.Completer.
func (s *UpstreamService) Complete(ctx context.Context, apiKey string, req *chat.Request) (*chat.Response, error) {
	return s.client.Load().Complete(ctx, apiKey, req)
}
