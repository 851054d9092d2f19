// Package uniswapv4 adapts singleton-manager pools to the engine's adapter
// contract. Pools are addressed by a 32-byte key over the pool manager;
// state reads go through the state-view contract.
package uniswapv4

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/fd1az/market-data-engine/business/dex/app"
	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/univ3math"
)

// standardPools are the no-hook fee/spacing combinations probed during
// discovery, matching the V3 fee tiers.
var standardPools = []struct {
	Fee         uint32
	TickSpacing int32
}{
	{100, 1},
	{500, 10},
	{3000, 60},
	{10000, 200},
}

// Ensure Adapter implements the contract.
var _ app.Adapter = (*Adapter)(nil)

// Adapter serves V4 pools for one venue on one chain.
type Adapter struct {
	cc    app.ChainContext
	venue domain.VenueID

	// keyIndex maps discovered pool keys to their static attributes so
	// events addressed by key can be resolved without reversing the hash.
	mu       sync.RWMutex
	keyIndex map[common.Hash]poolStatic
}

type poolStatic struct {
	pair        domain.TokenPairOnChain
	fee         uint32
	tickSpacing int32
	hooks       common.Address
}

// New creates a V4 adapter.
func New(cc app.ChainContext, venueName domain.VenueName) *Adapter {
	return &Adapter{
		cc:       cc,
		venue:    domain.DexVenue(venueName, cc.ChainID),
		keyIndex: make(map[common.Hash]poolStatic),
	}
}

func (a *Adapter) Protocol() app.Protocol { return app.ProtocolV4 }
func (a *Adapter) Venue() domain.VenueID  { return a.venue }

// PoolKey computes keccak256(abi.encode(currency0, currency1, fee,
// tickSpacing, hooks)), the pool's identity under the singleton manager.
func PoolKey(currency0, currency1 common.Address, fee uint32, tickSpacing int32, hooks common.Address) common.Hash {
	buf := make([]byte, 0, 5*32)
	buf = append(buf, common.LeftPadBytes(currency0.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(currency1.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(fee)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(twosComplement(int64(tickSpacing)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(hooks.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// twosComplement maps a signed value into its 256-bit two's complement.
func twosComplement(v int64) *big.Int {
	n := big.NewInt(v)
	if v >= 0 {
		return n
	}
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	return n.Add(n, mod)
}

// Discover probes the standard no-hook pool keys through the state view.
// A pool with zero sqrt price is treated as non-existent.
func (a *Adapter) Discover(ctx context.Context, pair domain.TokenPairOnChain) ([]domain.VenueState, error) {
	var out []domain.VenueState
	for _, combo := range standardPools {
		key := PoolKey(pair.Token0.AddressHex(), pair.Token1.AddressHex(),
			combo.Fee, combo.TickSpacing, common.Address{})

		sqrtPrice, _, _, err := a.cc.RPC.V4Slot0(ctx, a.cc.StateView, key)
		if err != nil {
			return nil, err
		}
		if sqrtPrice == nil || sqrtPrice.Sign() == 0 {
			continue
		}

		static := poolStatic{pair: pair, fee: combo.Fee, tickSpacing: combo.TickSpacing}
		a.mu.Lock()
		a.keyIndex[key] = static
		a.mu.Unlock()

		out = append(out, a.newPool(key, static))
	}
	return out, nil
}

// IntrospectFromEvent resolves an unknown pool key against the discovery
// index. The key is a hash; tokens cannot be recovered from it, so an
// unindexed key is an UnknownPool.
func (a *Adapter) IntrospectFromEvent(_ context.Context, ev domain.PoolEvent) (domain.VenueState, error) {
	swap, ok := ev.(*domain.SwapV4Event)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v4 adapter got %s", ev.Kind())))
	}

	a.mu.RLock()
	static, found := a.keyIndex[swap.PoolKey]
	a.mu.RUnlock()
	if !found {
		return nil, apperror.New(apperror.CodeUnknownPool,
			apperror.WithContext("pool key not in discovery index: "+swap.PoolKey.Hex()))
	}

	pool := a.newPool(swap.PoolKey, static)
	if err := a.ApplyEvent(pool, swap); err != nil {
		return nil, err
	}
	return pool, nil
}

// Refresh re-reads slot0 and liquidity through the state view. V4 tick
// windows are not read; the swap events carry post-state.
func (a *Adapter) Refresh(ctx context.Context, pool domain.VenueState) error {
	v4, err := a.statePool(pool)
	if err != nil {
		return err
	}

	sqrtPrice, tick, lpFee, err := a.cc.RPC.V4Slot0(ctx, a.cc.StateView, v4.PoolKey)
	if err != nil {
		return err
	}
	liquidity, err := a.cc.RPC.V4Liquidity(ctx, a.cc.StateView, v4.PoolKey)
	if err != nil {
		return err
	}

	v4.SqrtPriceX96 = sqrtPrice
	v4.Tick = tick
	if lpFee != 0 {
		v4.Fee = lpFee
	}
	v4.Liquidity = liquidity
	v4.RecomputeSpotPrices()
	return nil
}

// ApplyEvent applies a Swap's post-state; ModifyLiquidity is acknowledged
// without touching state.
func (a *Adapter) ApplyEvent(pool domain.VenueState, ev domain.PoolEvent) error {
	v4, err := a.statePool(pool)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case *domain.SwapV4Event:
		v4.SqrtPriceX96 = new(big.Int).Set(e.SqrtPriceX96)
		v4.Liquidity = new(big.Int).Set(e.Liquidity)
		v4.Tick = e.Tick
		v4.RecomputeSpotPrices()
		meta := e.Meta
		v4.LatestEventMeta = &meta
		return nil

	case *domain.ModifyLiquidityV4Event:
		meta := ev.Metadata()
		v4.LatestEventMeta = &meta
		return nil

	default:
		return apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v4 adapter got %s", ev.Kind())))
	}
}

// Simulate runs the multi-tick engine. Hooked pools simulate like plain
// pools; the hook's effect on amounts is not modelled.
func (a *Adapter) Simulate(pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	v4, err := a.statePool(pool)
	if err != nil {
		return nil, err
	}
	if v4.HasHooks() {
		a.cc.Log.Warn(context.Background(), "simulating hooked pool, accuracy not guaranteed",
			"pool", v4.ID(), "hooks", v4.Hooks.Hex())
	}
	return univ3math.AmountOut(v4.SqrtPriceX96, v4.Liquidity, v4.Tick, v4.Ticks, v4.Fee, amountIn, zeroForOne)
}

// Quote simulates locally; hooked pools are marked approximate.
func (a *Adapter) Quote(_ context.Context, pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (domain.TradeQuote, error) {
	v4, err := a.statePool(pool)
	if err != nil {
		return domain.TradeQuote{}, err
	}

	out, err := a.Simulate(pool, amountIn, zeroForOne)
	if err != nil {
		return domain.TradeQuote{}, err
	}

	tokenIn, tokenOut := v4.TokenPair.Token0, v4.TokenPair.Token1
	spot := v4.SpotPrice0to1
	if !zeroForOne {
		tokenIn, tokenOut = tokenOut, tokenIn
		spot = v4.SpotPrice1to0
	}

	confidence := domain.ConfidenceSimulated
	if v4.HasHooks() {
		confidence = domain.ConfidenceApproximate
	}
	q := domain.NewTradeQuote(amountIn, out, tokenIn.Decimals(), tokenOut.Decimals(),
		spot, a.FeePercent(pool), confidence)
	return q, nil
}

// FeePercent converts the ppm fee into a percentage.
func (a *Adapter) FeePercent(pool domain.VenueState) float64 {
	v4, err := a.statePool(pool)
	if err != nil {
		return 0
	}
	return float64(v4.Fee) / 1_000_000 * 100
}

func (a *Adapter) newPool(key common.Hash, static poolStatic) *domain.DexV4PoolState {
	return &domain.DexV4PoolState{
		DexV3PoolState: domain.DexV3PoolState{
			StateHeader: domain.StateHeader{
				Venue:             a.venue,
				Pair:              static.pair.PairID(),
				TotalLiquidityUSD: decimal.Zero,
			},
			TokenPair:    static.pair,
			SqrtPriceX96: new(big.Int),
			Liquidity:    new(big.Int),
			TickSpacing:  static.tickSpacing,
			Fee:          static.fee,
		},
		PoolKey: key,
		Hooks:   static.hooks,
		Manager: a.cc.PoolManager,
	}
}

func (a *Adapter) statePool(pool domain.VenueState) (*domain.DexV4PoolState, error) {
	v4, ok := pool.(*domain.DexV4PoolState)
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("v4 adapter got state kind %s", pool.Kind())))
	}
	return v4, nil
}
