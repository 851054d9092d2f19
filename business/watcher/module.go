package watcher

import (
	"context"

	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/di"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/monolith"
)

// supervisorToken is registered here to avoid an import cycle with the
// watcher's di package.
const supervisorToken = "watcher.Supervisor"

// Module implements the watcher bounded context.
type Module struct{}

// RegisterServices registers the supervisor.
func (m *Module) RegisterServices(c di.Container) error {
	c.RegisterFactory(supervisorToken, func(sr di.ServiceRegistry) any {
		log := sr.Get("logger").(logger.LoggerInterface)
		messageBus := sr.Get("bus").(*bus.Bus)
		return NewSupervisor(messageBus, log)
	})
	return nil
}

// Startup spawns one worker per enabled platform.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	supervisor := mono.Services().Get(supervisorToken).(*Supervisor)

	for _, name := range cfg.Enabled {
		platform := cfg.Platforms[name]
		if err := supervisor.Spawn(ctx, name, platform, cfg.Cache.Dir); err != nil {
			return err
		}
		mono.Logger().Info(ctx, "watcher spawned",
			"platform", name, "chain_id", platform.ChainID)
	}

	mono.Logger().Info(ctx, "watcher module started", "platforms", len(cfg.Enabled))
	return nil
}
