package app

import (
	"context"
	"io"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
)

func newOracle(anchors ...Anchor) *Oracle {
	return NewOracle(anchors, logger.New(io.Discard, logger.LevelDebug, "test", nil))
}

// spotPool builds a V2 pool with explicit spot prices.
func spotPool(t *testing.T, a, b *token.Token, addr string, spot0to1 float64) *dexdomain.DexV2PoolState {
	t.Helper()
	pair, err := dexdomain.NewTokenPairOnChain(a, b)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	pool := &dexdomain.DexV2PoolState{
		StateHeader: dexdomain.StateHeader{
			Venue:             dexdomain.DexVenue(dexdomain.VenueUniswapV2, 1),
			Pair:              pair.PairID(),
			TotalLiquidityUSD: decimal.Zero,
		},
		TokenPair:     pair,
		Address:       common.HexToAddress(addr),
		Reserve0:      big.NewInt(1),
		Reserve1:      big.NewInt(1),
		FeeBps:        30,
		SpotPrice0to1: spot0to1,
	}
	if spot0to1 != 0 {
		pool.SpotPrice1to0 = 1 / spot0to1
	}
	return pool
}

func TestAnchorsPinnedAtOne(t *testing.T) {
	o := newOracle(Anchor{ChainID: 1, Address: usdc.Address()})

	price, ok := o.Price(1, usdc.Address())
	if !ok || price != 1.0 {
		t.Fatalf("anchor price = %f, want exactly 1.0", price)
	}

	// A pool that would re-price the anchor must not move it.
	pool := spotPool(t, weth, usdc, "0x0000000000000000000000000000000000000011", 0.0004)
	o.OnPoolsUpdated(context.Background(), []dexdomain.VenueState{pool})

	price, _ = o.Price(1, usdc.Address())
	if price != 1.0 {
		t.Errorf("anchor moved to %f", price)
	}
}

func TestPricePropagationThroughPools(t *testing.T) {
	o := newOracle(Anchor{ChainID: 1, Address: usdc.Address()})
	ctx := context.Background()

	// Pair (WETH, USDC): on-chain order is (USDC, WETH) because the USDC
	// address sorts first. spot0to1 = 1/2500 WETH per USDC, so 1 WETH is
	// 2500 USDC.
	wethUsdc := spotPool(t, usdc, weth, "0x0000000000000000000000000000000000000012", 1.0/2500)
	o.OnPoolsUpdated(ctx, []dexdomain.VenueState{wethUsdc})

	wethPrice, ok := o.Price(1, weth.Address())
	if !ok {
		t.Fatal("WETH not priced")
	}
	if math.Abs(wethPrice-2500) > 1e-9 {
		t.Errorf("WETH = %f, want 2500", wethPrice)
	}

	// Then a (WETH, DAI) pool prices DAI off WETH. On-chain order is
	// (DAI, WETH); 1 WETH = 2500 DAI means spot1to0 = 2500.
	wethDai := spotPool(t, dai, weth, "0x0000000000000000000000000000000000000013", 1.0/2500)
	o.OnPoolsUpdated(ctx, []dexdomain.VenueState{wethDai})

	daiPrice, ok := o.Price(1, dai.Address())
	if !ok {
		t.Fatal("DAI not priced")
	}
	if math.Abs(daiPrice-1.0) > 1e-6 {
		t.Errorf("DAI = %f, want ~1.0", daiPrice)
	}
}

func TestPricesAreKeyedPerChain(t *testing.T) {
	o := newOracle(Anchor{ChainID: 1, Address: usdc.Address()})

	if _, ok := o.Price(56, usdc.Address()); ok {
		t.Error("price must not leak across chains")
	}
}

func TestZeroSpotPriceDoesNotPropagate(t *testing.T) {
	o := newOracle(Anchor{ChainID: 1, Address: usdc.Address()})

	pool := spotPool(t, usdc, weth, "0x0000000000000000000000000000000000000014", 0)
	o.OnPoolsUpdated(context.Background(), []dexdomain.VenueState{pool})

	if _, ok := o.Price(1, weth.Address()); ok {
		t.Error("zero spot must not derive a price")
	}
}

func TestPriceDecimal(t *testing.T) {
	o := newOracle(Anchor{ChainID: 1, Address: usdc.Address()})

	d, ok := o.PriceDecimal(1, usdc.Address())
	if !ok || !d.Equal(decimal.NewFromInt(1)) {
		t.Errorf("PriceDecimal = %s", d)
	}
	if _, ok := o.PriceDecimal(1, "0xunknown"); ok {
		t.Error("unknown token must not be priced")
	}
}
