// Package aggregator implements the aggregator bounded context: the
// multi-index store, the price oracle, and the bus-facing service.
package aggregator

import (
	"context"

	"github.com/fd1az/market-data-engine/business/aggregator/app"
	aggregatorDI "github.com/fd1az/market-data-engine/business/aggregator/di"
	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/di"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/monolith"
)

// Module implements the aggregator bounded context.
type Module struct{}

// RegisterServices registers the store, oracle, and service.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, aggregatorDI.Store, func(sr di.ServiceRegistry) *app.Store {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewStore(log)
	})

	di.RegisterToken(c, aggregatorDI.Oracle, func(sr di.ServiceRegistry) *app.Oracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var anchors []app.Anchor
		for _, name := range cfg.Enabled {
			platform := cfg.Platforms[name]
			for _, addr := range platform.StableAnchors() {
				anchors = append(anchors, app.Anchor{ChainID: platform.ChainID, Address: addr})
			}
		}
		return app.NewOracle(anchors, log)
	})

	di.RegisterToken(c, aggregatorDI.AggregatorService, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		messageBus := sr.Get("bus").(*bus.Bus)
		return app.NewService(
			aggregatorDI.GetStore(sr),
			aggregatorDI.GetOracle(sr),
			messageBus,
			log,
		)
	})

	return nil
}

// Startup attaches the service to the bus.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	service := aggregatorDI.GetService(mono.Services())
	service.Start(ctx)
	mono.Logger().Info(ctx, "aggregator module started")
	return nil
}
