// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/di"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// Monolith is the main application container providing access to shared
// infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Bus() *bus.Bus
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services
// and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// App implements the Monolith interface.
type App struct {
	config    *config.Config
	logger    logger.LoggerInterface
	bus       *bus.Bus
	container di.Container
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface) (*App, error) {
	container := di.NewContainer()
	messageBus := bus.New(log)

	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("bus", messageBus)

	return &App{
		config:    cfg,
		logger:    log,
		bus:       messageBus,
		container: container,
	}, nil
}

func (a *App) Config() *config.Config         { return a.config }
func (a *App) Logger() logger.LoggerInterface { return a.logger }
func (a *App) Bus() *bus.Bus                  { return a.bus }
func (a *App) Services() di.ServiceRegistry   { return a.container }

// Container returns the DI container for module registration.
func (a *App) Container() di.Container { return a.container }

// RegisterModules registers all provided modules.
func (a *App) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *App) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close releases shared resources.
func (a *App) Close() error {
	return nil
}
