// Package di wires keygate's services together using samber/do v2.
package di

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"
)

// ConfigPathKey is the named key for the config path string.
const ConfigPathKey = "config.path"

// Container wraps the do.Injector with keygate's service providers.
type Container struct {
	injector *do.RootScope
}

// NewContainer creates the container and registers every provider. Services
// are built lazily on first Invoke; the config is loaded eagerly so that a
// bad path or file fails here.
func NewContainer(configPath string) (*Container, error) {
	injector := do.New()
	do.ProvideNamedValue(injector, ConfigPathKey, configPath)
	RegisterSingletons(injector)

	c := &Container{injector: injector}
	if _, err := do.Invoke[*ConfigService](injector); err != nil {
		_ = c.Shutdown()
		return nil, err
	}
	return c, nil
}

// Injector returns the underlying do.Injector.
func (c *Container) Injector() *do.RootScope {
	return c.injector
}

// Invoke resolves a service from the container.
func Invoke[T any](c *Container) (T, error) {
	return do.Invoke[T](c.injector)
}

// MustInvoke resolves a service from the container or panics.
// Use this only during startup where errors are fatal.
func MustInvoke[T any](c *Container) T {
	return do.MustInvoke[T](c.injector)
}

// InvokeNamed resolves a named service from the container.
func InvokeNamed[T any](c *Container, name string) (T, error) {
	return do.InvokeNamed[T](c.injector, name)
}

// Shutdown shuts services down in reverse order of initialization.
func (c *Container) Shutdown() error {
	report := c.injector.Shutdown()
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown failed: %s", report.Error())
	}
	return nil
}

// ShutdownWithContext is Shutdown bounded by ctx.
func (c *Container) ShutdownWithContext(ctx context.Context) error {
	done := make(chan *do.ShutdownReport, 1)
	go func() {
		done <- c.injector.ShutdownWithContext(ctx)
	}()

	select {
	case report := <-done:
		if report != nil && !report.Succeed {
			return fmt.Errorf("shutdown failed: %s", report.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// HealthCheck resolves the service graph up to the HTTP handler, surfacing
// construction errors before the server starts.
func (c *Container) HealthCheck() error {
	if _, err := do.Invoke[*ConfigService](c.injector); err != nil {
		return fmt.Errorf("config service unhealthy: %w", err)
	}
	if _, err := do.Invoke[*GateService](c.injector); err != nil {
		return fmt.Errorf("gate service unhealthy: %w", err)
	}
	if _, err := do.Invoke[*HandlerService](c.injector); err != nil {
		return fmt.Errorf("handler service unhealthy: %w", err)
	}
	return nil
}
