// Package di contains dependency injection tokens for the aggregator
// context.
package di

import (
	"github.com/fd1az/market-data-engine/business/aggregator/app"
	"github.com/fd1az/market-data-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	AggregatorService = di.NewToken[*app.Service]("aggregator.Service")
)

// Private dependency tokens - internal to the aggregator module
var (
	Store  = di.NewToken[*app.Store]("aggregator:store")
	Oracle = di.NewToken[*app.Oracle]("aggregator:oracle")
)

// Helper functions for type-safe access
func GetService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, AggregatorService)
}

func GetStore(c di.ServiceRegistry) *app.Store {
	return di.GetToken(c, Store)
}

func GetOracle(c di.ServiceRegistry) *app.Oracle {
	return di.GetToken(c, Oracle)
}
