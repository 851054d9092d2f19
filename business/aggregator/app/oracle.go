package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// Anchor pins a stable coin to exactly one dollar.
type Anchor struct {
	ChainID uint64
	Address string // lowercase hex
}

// Oracle floods USD prices across pools from the stable-coin anchors.
// Prices are keyed "chainId:address"; no cross-chain unification happens
// here. Propagation saturates over successive pool deliveries because the
// aggregator delivers pools in a deterministic order.
type Oracle struct {
	log logger.LoggerInterface

	mu      sync.RWMutex
	prices  map[string]float64
	anchors map[string]struct{}
}

// NewOracle seeds the oracle with its anchors at exactly 1.0.
func NewOracle(anchors []Anchor, log logger.LoggerInterface) *Oracle {
	o := &Oracle{
		log:     log,
		prices:  make(map[string]float64),
		anchors: make(map[string]struct{}),
	}
	for _, a := range anchors {
		key := priceKey(a.ChainID, a.Address)
		o.prices[key] = 1.0
		o.anchors[key] = struct{}{}
	}
	return o
}

// OnPoolsUpdated propagates USD prices through the delivered pools. For
// each pool, a known token0 price prices token1 via the spot price, and
// symmetrically. Anchors never move.
func (o *Oracle) OnPoolsUpdated(ctx context.Context, pools []dexdomain.VenueState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, state := range pools {
		pair, ok := statePair(state)
		if !ok {
			continue
		}
		spot0to1, spot1to0 := spotPrices(state)

		key0 := priceKey(pair.ChainID(), pair.Token0.Address())
		key1 := priceKey(pair.ChainID(), pair.Token1.Address())

		if price0, known := o.prices[key0]; known && spot0to1 > 0 {
			o.write(ctx, key1, price0/spot0to1)
		}
		if price1, known := o.prices[key1]; known && spot1to0 > 0 {
			o.write(ctx, key0, price1/spot1to0)
		}
	}
}

// write stores a derived price unless the key is an anchor.
func (o *Oracle) write(ctx context.Context, key string, price float64) {
	if _, anchored := o.anchors[key]; anchored {
		return
	}
	if price <= 0 {
		return
	}
	o.prices[key] = price
	o.log.Debug(ctx, "usd price derived", "token", key, "price", price)
}

// Price returns the USD price for (chainID, address).
func (o *Oracle) Price(chainID uint64, address string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[priceKey(chainID, address)]
	return p, ok
}

// PriceDecimal returns the price as a decimal for display layers.
func (o *Oracle) PriceDecimal(chainID uint64, address string) (decimal.Decimal, bool) {
	p, ok := o.Price(chainID, address)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(p), true
}

// Known returns how many prices the oracle currently holds.
func (o *Oracle) Known() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.prices)
}

// spotPrices extracts the derived spot prices from a DEX state.
func spotPrices(state dexdomain.VenueState) (float64, float64) {
	switch t := state.(type) {
	case *dexdomain.DexV2PoolState:
		return t.SpotPrice0to1, t.SpotPrice1to0
	case *dexdomain.DexV3PoolState:
		return t.SpotPrice0to1, t.SpotPrice1to0
	case *dexdomain.DexV4PoolState:
		return t.SpotPrice0to1, t.SpotPrice1to0
	}
	return 0, 0
}

func priceKey(chainID uint64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, address)
}
