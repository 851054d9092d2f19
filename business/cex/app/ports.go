// Package app defines the centralised-exchange boundary. The engine
// consumes best-bid/ask market states from a feed; order routing and
// deeper CEX integration live outside this system.
package app

import (
	"context"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
)

// MarketFeed streams CexMarketState updates for a set of symbols.
type MarketFeed interface {
	// Start connects and begins streaming. Non-blocking; updates surface
	// on Updates until Close.
	Start(ctx context.Context) error

	// Updates delivers market-state snapshots. Each value is an
	// independent copy owned by the receiver.
	Updates() <-chan *dexdomain.CexMarketState

	// Close tears the feed down.
	Close() error
}
