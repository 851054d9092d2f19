// Package uniswapv2 adapts constant-product pools to the engine's adapter
// contract.
package uniswapv2

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/market-data-engine/business/dex/app"
	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
)

// Fee is fixed at 30 bps over a 10_000 denominator for every V2-style pool.
const (
	feeBps         = 30
	feeDenominator = 10_000
)

// Ensure Adapter implements the contract.
var _ app.Adapter = (*Adapter)(nil)

// Adapter serves V2 constant-product pools for one venue on one chain.
type Adapter struct {
	cc    app.ChainContext
	venue domain.VenueID
}

// New creates a V2 adapter.
func New(cc app.ChainContext, venueName domain.VenueName) *Adapter {
	return &Adapter{cc: cc, venue: domain.DexVenue(venueName, cc.ChainID)}
}

func (a *Adapter) Protocol() app.Protocol { return app.ProtocolV2 }
func (a *Adapter) Venue() domain.VenueID  { return a.venue }

// Discover resolves the pair address from the factory. The zero address
// means the pool does not exist.
func (a *Adapter) Discover(ctx context.Context, pair domain.TokenPairOnChain) ([]domain.VenueState, error) {
	addr, err := a.cc.RPC.GetPair(ctx, a.cc.Factory, pair.Token0.AddressHex(), pair.Token1.AddressHex())
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}

	pool := a.newPool(pair, addr)
	return []domain.VenueState{pool}, nil
}

// IntrospectFromEvent builds pool state from the first Sync seen for an
// unknown address: exactly two view calls (token0, token1), then token
// registration, then the event's reserves.
func (a *Adapter) IntrospectFromEvent(ctx context.Context, ev domain.PoolEvent) (domain.VenueState, error) {
	sync, ok := ev.(*domain.SyncEvent)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v2 adapter got %s", ev.Kind())))
	}

	addr0, err := a.cc.RPC.PairToken0(ctx, sync.Address)
	if err != nil {
		return nil, unknownPool(sync.Address, err)
	}
	addr1, err := a.cc.RPC.PairToken1(ctx, sync.Address)
	if err != nil {
		return nil, unknownPool(sync.Address, err)
	}

	token0, err := a.cc.Tokens.EnsureRegistered(ctx, a.cc.ChainID, addr0, a.cc.RPC)
	if err != nil {
		return nil, unknownPool(sync.Address, err)
	}
	token1, err := a.cc.Tokens.EnsureRegistered(ctx, a.cc.ChainID, addr1, a.cc.RPC)
	if err != nil {
		return nil, unknownPool(sync.Address, err)
	}

	pair, err := domain.NewTokenPairOnChain(token0, token1)
	if err != nil {
		return nil, unknownPool(sync.Address, err)
	}

	pool := a.newPool(pair, sync.Address)
	if err := a.ApplyEvent(pool, sync); err != nil {
		return nil, err
	}
	return pool, nil
}

// Refresh re-reads the reserves.
func (a *Adapter) Refresh(ctx context.Context, pool domain.VenueState) error {
	v2, err := a.statePool(pool)
	if err != nil {
		return err
	}

	r0, r1, err := a.cc.RPC.GetReserves(ctx, v2.Address)
	if err != nil {
		return err
	}
	v2.Reserve0 = r0
	v2.Reserve1 = r1
	v2.RecomputeSpotPrices()
	return nil
}

// ApplyEvent applies a Sync; any other kind is a mismatch.
func (a *Adapter) ApplyEvent(pool domain.VenueState, ev domain.PoolEvent) error {
	v2, err := a.statePool(pool)
	if err != nil {
		return err
	}

	sync, ok := ev.(*domain.SyncEvent)
	if !ok {
		return apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v2 adapter got %s", ev.Kind())))
	}

	v2.Reserve0 = new(big.Int).Set(sync.Reserve0)
	v2.Reserve1 = new(big.Int).Set(sync.Reserve1)
	v2.RecomputeSpotPrices()

	meta := sync.Meta
	v2.LatestEventMeta = &meta
	return nil
}

// Simulate computes the constant-product output with the 30 bps fee.
func (a *Adapter) Simulate(pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	v2, err := a.statePool(pool)
	if err != nil {
		return nil, err
	}

	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidAmount,
			apperror.WithContext("amountIn must be positive"))
	}

	reserveIn, reserveOut := v2.Reserve0, v2.Reserve1
	if !zeroForOne {
		reserveIn, reserveOut = v2.Reserve1, v2.Reserve0
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("pool has empty reserves"))
	}
	if amountIn.Cmp(reserveIn) > 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("amountIn exceeds input reserve"))
	}

	// out = inWithFee * reserveOut / (reserveIn + inWithFee)
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(feeDenominator-feeBps))
	inWithFee.Div(inWithFee, big.NewInt(feeDenominator))

	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Add(reserveIn, inWithFee)
	return numerator.Div(numerator, denominator), nil
}

// Quote simulates locally and derives execution price and impact against
// the spot reserve ratio.
func (a *Adapter) Quote(_ context.Context, pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (domain.TradeQuote, error) {
	v2, err := a.statePool(pool)
	if err != nil {
		return domain.TradeQuote{}, err
	}

	out, err := a.Simulate(pool, amountIn, zeroForOne)
	if err != nil {
		return domain.TradeQuote{}, err
	}

	spot := v2.SpotPrice0to1
	if !zeroForOne {
		spot = v2.SpotPrice1to0
	}

	// Spot prices are raw reserve ratios, so the quote works in raw units.
	q := domain.NewTradeQuote(amountIn, out, 0, 0, spot, a.FeePercent(pool), domain.ConfidenceSimulated)
	return q, nil
}

// FeePercent returns the fixed fee as a percentage.
func (a *Adapter) FeePercent(domain.VenueState) float64 {
	return float64(feeBps) / feeDenominator * 100
}

func (a *Adapter) newPool(pair domain.TokenPairOnChain, addr common.Address) *domain.DexV2PoolState {
	return &domain.DexV2PoolState{
		StateHeader: domain.StateHeader{
			Venue:             a.venue,
			Pair:              pair.PairID(),
			TotalLiquidityUSD: decimal.Zero,
		},
		TokenPair: pair,
		Address:   addr,
		Reserve0:  new(big.Int),
		Reserve1:  new(big.Int),
		FeeBps:    feeBps,
	}
}

func (a *Adapter) statePool(pool domain.VenueState) (*domain.DexV2PoolState, error) {
	v2, ok := pool.(*domain.DexV2PoolState)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v2 adapter got state kind %s", pool.Kind())))
	}
	return v2, nil
}

func unknownPool(addr common.Address, cause error) error {
	return apperror.New(apperror.CodeUnknownPool,
		apperror.WithCause(cause),
		apperror.WithContext("cannot resolve tokens for "+addr.Hex()))
}
