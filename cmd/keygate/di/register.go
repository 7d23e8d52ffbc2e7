package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. KeyPool (depends on Config)
// 4. Gate (depends on Config, KeyPool)
// 5. HealthTracker (depends on Config, Logger, KeyPool)
// 6. Upstream (depends on Config)
// 7. Rotator (depends on Config, KeyPool, Upstream, HealthTracker)
// 8. UserTracker (no dependencies)
// 9. Sessions (depends on Config, Gate, KeyPool, Upstream, HealthTracker, UserTracker)
// 10. Concurrency (depends on Config)
// 11. Handler (depends on all above services)
// 12. Server (depends on Handler, Config).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewKeyPool)
	do.Provide(i, NewGate)
	do.Provide(i, NewHealthTracker)
	do.Provide(i, NewUpstream)
	do.Provide(i, NewRotator)
	do.Provide(i, NewUserTracker)
	do.Provide(i, NewSessions)
	do.Provide(i, NewConcurrencyService)
	do.Provide(i, NewHandler)
	do.Provide(i, NewHTTPServer)
}
