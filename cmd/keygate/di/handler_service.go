package di

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/omarluq/keygate/internal/server"
	"github.com/omarluq/keygate/internal/tracker"
)

// HandlerService wraps the HTTP handler.
type HandlerService struct {
	API     *server.Handler
	Handler http.Handler
}

// NewUserTracker creates the per-user request tracker.
func NewUserTracker(do.Injector) (*tracker.Tracker, error) {
	return tracker.New(), nil
}

// NewHandler creates the HTTP handler with all middleware.
func NewHandler(i do.Injector) (*HandlerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)
	gateSvc := do.MustInvoke[*GateService](i)
	healthSvc := do.MustInvoke[*HealthTrackerService](i)
	rotatorSvc := do.MustInvoke[*RotatorService](i)
	sessionSvc := do.MustInvoke[*SessionService](i)
	concurrencySvc := do.MustInvoke[*ConcurrencyService](i)

	api := server.NewHandler(server.Deps{
		Runtime:  cfgSvc,
		Pool:     poolSvc.Pool,
		Gate:     gateSvc.Gate,
		Rotator:  rotatorSvc.Rotator,
		Sessions: sessionSvc.Dispatcher,
		Users:    do.MustInvoke[*tracker.Tracker](i),
		Health:   healthSvc.Tracker,
	})
	return &HandlerService{
		API:     api,
		Handler: api.Routes(*loggerSvc.Logger, concurrencySvc.Limiter),
	}, nil
}
