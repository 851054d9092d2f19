// Package di contains dependency injection tokens for the watcher context.
package di

import (
	"github.com/fd1az/market-data-engine/business/watcher"
	"github.com/fd1az/market-data-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Supervisor = di.NewToken[*watcher.Supervisor]("watcher.Supervisor")
)

// Helper functions for type-safe access
func GetSupervisor(c di.ServiceRegistry) *watcher.Supervisor {
	return di.GetToken(c, Supervisor)
}
