// Package cex implements the centralised-exchange bounded context. Only
// the market-data boundary lives here: a feed of best bid/ask states
// folded into the aggregator.
package cex

import (
	"context"

	aggregatorDI "github.com/fd1az/market-data-engine/business/aggregator/di"
	"github.com/fd1az/market-data-engine/business/cex/app"
	"github.com/fd1az/market-data-engine/business/cex/infra/binance"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/di"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/monolith"
)

const feedToken = "cex.MarketFeed"

// Module implements the cex bounded context.
type Module struct{}

// RegisterServices registers the market feed.
func (m *Module) RegisterServices(c di.Container) error {
	c.RegisterFactory(feedToken, func(sr di.ServiceRegistry) any {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		feedCfg := binance.DefaultFeedConfig(cfg.Cex.Symbols)
		if cfg.Cex.BaseURL != "" {
			feedCfg.BaseURL = cfg.Cex.BaseURL
		}
		feedCfg.WithDepth = cfg.Cex.Depth

		feed, err := binance.NewFeed(feedCfg, log)
		if err != nil {
			panic("failed to create binance feed: " + err.Error())
		}
		return feed
	})
	return nil
}

// Startup connects the feed and pumps updates into the aggregator.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	if !cfg.Cex.Enabled {
		mono.Logger().Info(ctx, "cex module disabled")
		return nil
	}

	feed := mono.Services().Get(feedToken).(app.MarketFeed)
	service := aggregatorDI.GetService(mono.Services())

	if err := feed.Start(ctx); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = feed.Close()
				return
			case state, ok := <-feed.Updates():
				if !ok {
					return
				}
				service.ApplyCexUpdate(state)
			}
		}
	}()

	mono.Logger().Info(ctx, "cex module started", "symbols", len(cfg.Cex.Symbols))
	return nil
}
