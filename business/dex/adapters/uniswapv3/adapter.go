// Package uniswapv3 adapts concentrated-liquidity pools to the engine's
// adapter contract.
package uniswapv3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/market-data-engine/business/dex/app"
	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/univ3math"
)

// FeeTiers is the closed set of fee tiers probed during discovery, in
// parts per million.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// tickWindowRadius is how many spacing steps around the current tick are
// pulled on refresh.
const tickWindowRadius = 200

// Ensure Adapter implements the contract.
var _ app.Adapter = (*Adapter)(nil)

// Adapter serves V3 pools for one venue on one chain.
type Adapter struct {
	cc    app.ChainContext
	venue domain.VenueID
}

// New creates a V3 adapter.
func New(cc app.ChainContext, venueName domain.VenueName) *Adapter {
	return &Adapter{cc: cc, venue: domain.DexVenue(venueName, cc.ChainID)}
}

func (a *Adapter) Protocol() app.Protocol { return app.ProtocolV3 }
func (a *Adapter) Venue() domain.VenueID  { return a.venue }

// Discover probes every fee tier on the factory. Missing tiers return the
// zero address and are skipped.
func (a *Adapter) Discover(ctx context.Context, pair domain.TokenPairOnChain) ([]domain.VenueState, error) {
	var out []domain.VenueState
	for _, fee := range FeeTiers {
		addr, err := a.cc.RPC.GetPool(ctx, a.cc.Factory, pair.Token0.AddressHex(), pair.Token1.AddressHex(), fee)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			continue
		}

		spacing, err := a.cc.RPC.PoolTickSpacing(ctx, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, a.newPool(pair, addr, fee, spacing))
	}
	return out, nil
}

// IntrospectFromEvent builds pool state from the first Swap seen for an
// unknown address.
func (a *Adapter) IntrospectFromEvent(ctx context.Context, ev domain.PoolEvent) (domain.VenueState, error) {
	swap, ok := ev.(*domain.SwapV3Event)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v3 adapter got %s", ev.Kind())))
	}

	addr0, err := a.cc.RPC.PoolToken0(ctx, swap.Address)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}
	addr1, err := a.cc.RPC.PoolToken1(ctx, swap.Address)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}

	token0, err := a.cc.Tokens.EnsureRegistered(ctx, a.cc.ChainID, addr0, a.cc.RPC)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}
	token1, err := a.cc.Tokens.EnsureRegistered(ctx, a.cc.ChainID, addr1, a.cc.RPC)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}

	pair, err := domain.NewTokenPairOnChain(token0, token1)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}

	fee, err := a.cc.RPC.PoolFee(ctx, swap.Address)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}
	spacing, err := a.cc.RPC.PoolTickSpacing(ctx, swap.Address)
	if err != nil {
		return nil, unknownPool(swap.Address, err)
	}

	pool := a.newPool(pair, swap.Address, fee, spacing)
	if err := a.ApplyEvent(pool, swap); err != nil {
		return nil, err
	}
	return pool, nil
}

// Refresh re-reads slot0, liquidity, and the tick window around the
// current tick.
func (a *Adapter) Refresh(ctx context.Context, pool domain.VenueState) error {
	v3, err := a.statePool(pool)
	if err != nil {
		return err
	}

	sqrtPrice, tick, err := a.cc.RPC.Slot0(ctx, v3.Address)
	if err != nil {
		return err
	}
	liquidity, err := a.cc.RPC.Liquidity(ctx, v3.Address)
	if err != nil {
		return err
	}

	v3.SqrtPriceX96 = sqrtPrice
	v3.Tick = tick
	v3.Liquidity = liquidity
	v3.RecomputeSpotPrices()

	ticks, err := a.cc.RPC.TicksWindow(ctx, v3.Address, tick, v3.TickSpacing, tickWindowRadius)
	if err != nil {
		// Stale ticks degrade simulation accuracy but the refreshed price
		// is still valid; keep going.
		a.cc.Log.Warn(ctx, "tick window refresh failed",
			"pool", v3.ID(), "error", err)
		return nil
	}
	v3.Ticks = ticks
	return nil
}

// ApplyEvent applies a Swap's post-state. Mint and Burn are acknowledged
// without touching state; a contract refresh would be needed to fold them
// in. Foreign kinds are a mismatch.
func (a *Adapter) ApplyEvent(pool domain.VenueState, ev domain.PoolEvent) error {
	v3, err := a.statePool(pool)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case *domain.SwapV3Event:
		v3.SqrtPriceX96 = new(big.Int).Set(e.SqrtPriceX96)
		v3.Liquidity = new(big.Int).Set(e.Liquidity)
		v3.Tick = e.Tick
		v3.RecomputeSpotPrices()
		meta := e.Meta
		v3.LatestEventMeta = &meta
		return nil

	case *domain.MintV3Event, *domain.BurnV3Event:
		meta := ev.Metadata()
		v3.LatestEventMeta = &meta
		return nil

	default:
		return apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v3 adapter got %s", ev.Kind())))
	}
}

// Simulate runs the multi-tick swap engine over the pool's tick window.
func (a *Adapter) Simulate(pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	v3, err := a.statePool(pool)
	if err != nil {
		return nil, err
	}
	return univ3math.AmountOut(v3.SqrtPriceX96, v3.Liquidity, v3.Tick, v3.Ticks, v3.Fee, amountIn, zeroForOne)
}

// Quote prefers the on-chain quoter for exactness and falls back to local
// simulation when no quoter is configured.
func (a *Adapter) Quote(ctx context.Context, pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (domain.TradeQuote, error) {
	v3, err := a.statePool(pool)
	if err != nil {
		return domain.TradeQuote{}, err
	}

	tokenIn, tokenOut := v3.TokenPair.Token0, v3.TokenPair.Token1
	spot := v3.SpotPrice0to1
	if !zeroForOne {
		tokenIn, tokenOut = tokenOut, tokenIn
		spot = v3.SpotPrice1to0
	}

	confidence := domain.ConfidenceExact
	var out *big.Int
	if a.cc.Quoter != (common.Address{}) {
		out, err = a.cc.RPC.QuoteExactInputSingle(ctx, a.cc.Quoter,
			tokenIn.AddressHex(), tokenOut.AddressHex(), v3.Fee, amountIn)
	}
	if out == nil || err != nil {
		out, err = a.Simulate(pool, amountIn, zeroForOne)
		confidence = domain.ConfidenceSimulated
		if err != nil {
			return domain.TradeQuote{}, err
		}
	}

	q := domain.NewTradeQuote(amountIn, out, tokenIn.Decimals(), tokenOut.Decimals(),
		spot, a.FeePercent(pool), confidence)
	return q, nil
}

// FeePercent converts the ppm fee into a percentage.
func (a *Adapter) FeePercent(pool domain.VenueState) float64 {
	v3, err := a.statePool(pool)
	if err != nil {
		return 0
	}
	return float64(v3.Fee) / 1_000_000 * 100
}

func (a *Adapter) newPool(pair domain.TokenPairOnChain, addr common.Address, fee uint32, spacing int32) *domain.DexV3PoolState {
	return &domain.DexV3PoolState{
		StateHeader: domain.StateHeader{
			Venue:             a.venue,
			Pair:              pair.PairID(),
			TotalLiquidityUSD: decimal.Zero,
		},
		TokenPair:    pair,
		Address:      addr,
		SqrtPriceX96: new(big.Int),
		Liquidity:    new(big.Int),
		TickSpacing:  spacing,
		Fee:          fee,
	}
}

func (a *Adapter) statePool(pool domain.VenueState) (*domain.DexV3PoolState, error) {
	v3, ok := pool.(*domain.DexV3PoolState)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v3 adapter got state kind %s", pool.Kind())))
	}
	return v3, nil
}

func unknownPool(addr common.Address, cause error) error {
	return apperror.New(apperror.CodeUnknownPool,
		apperror.WithCause(cause),
		apperror.WithContext("cannot resolve tokens for "+addr.Hex()))
}
