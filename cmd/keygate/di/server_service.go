package di

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/server"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 30 * time.Second

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *server.Server
}

// NewHTTPServer creates the HTTP server. The listen address and protocol
// are fixed at startup.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)
	cfg := cfgSvc.Get().Server

	srv := server.NewServer(
		cfg.GetEffectiveListen(),
		handlerSvc.Handler,
		cfg.GetEffectiveTimeout(),
		cfg.EnableHTTP2,
	)
	return &ServerService{Server: srv}, nil
}

// Shutdown implements do.Shutdowner.
func (s *ServerService) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
