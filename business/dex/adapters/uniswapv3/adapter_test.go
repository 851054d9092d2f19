package uniswapv3

import (
	"io"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/business/dex/app"
	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
	"github.com/fd1az/market-data-engine/internal/univ3math"
)

var (
	weth = token.New(1, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18, true)
	usdc = token.New(1, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6, true)

	poolAddr = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	cc := app.ChainContext{
		ChainID: 1,
		Tokens:  token.NewRegistry(log),
		Log:     log,
	}
	return New(cc, domain.VenueUniswapV3)
}

func seedPool(t *testing.T, a *Adapter) *domain.DexV3PoolState {
	t.Helper()
	pair, err := domain.NewTokenPairOnChain(usdc, weth)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	pool := a.newPool(pair, poolAddr, 3000, 60)
	pool.SqrtPriceX96 = new(big.Int).Set(univ3math.Q96)
	pool.Liquidity = mustBig(t, "1000000000000000000")
	pool.Tick = 0
	pool.RecomputeSpotPrices()
	return pool
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return v
}

func TestApplySwapUpdatesState(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a)
	before := pool.SpotPrice0to1

	// Raise the sqrt price by 1%: price moves ~2.01%.
	newSqrt := new(big.Int).Mul(univ3math.Q96, big.NewInt(101))
	newSqrt.Div(newSqrt, big.NewInt(100))

	ev := &domain.SwapV3Event{
		EventBase: domain.EventBase{
			ChainID: 1,
			Address: poolAddr,
			Meta:    domain.EventMetadata{BlockNumber: 50, TransactionIndex: 1, LogIndex: 3},
		},
		SqrtPriceX96: newSqrt,
		Liquidity:    mustBig(t, "2000000000000000000"),
		Tick:         199,
	}

	if err := a.ApplyEvent(pool, ev); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if pool.SqrtPriceX96.Cmp(newSqrt) != 0 {
		t.Error("sqrt price not updated")
	}
	if pool.Tick != 199 {
		t.Errorf("tick = %d, want 199", pool.Tick)
	}
	if pool.Liquidity.Cmp(ev.Liquidity) != 0 {
		t.Error("liquidity not updated")
	}

	growth := pool.SpotPrice0to1/before - 1
	if math.Abs(growth-0.0201) > 0.0002 {
		t.Errorf("price growth = %f, want ~0.0201", growth)
	}
	if pool.LatestEventMeta == nil || pool.LatestEventMeta.BlockNumber != 50 {
		t.Error("event metadata not recorded")
	}
}

func TestMintBurnIgnoredForState(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a)
	sqrtBefore := new(big.Int).Set(pool.SqrtPriceX96)

	mint := &domain.MintV3Event{
		EventBase: domain.EventBase{
			ChainID: 1,
			Address: poolAddr,
			Meta:    domain.EventMetadata{BlockNumber: 60},
		},
		TickLower: -60,
		TickUpper: 60,
		Amount:    big.NewInt(1000),
	}
	if err := a.ApplyEvent(pool, mint); err != nil {
		t.Fatalf("mint apply: %v", err)
	}

	if pool.SqrtPriceX96.Cmp(sqrtBefore) != 0 {
		t.Error("mint must not change price state")
	}
	if pool.LatestEventMeta == nil || pool.LatestEventMeta.BlockNumber != 60 {
		t.Error("mint must still advance event metadata")
	}
}

func TestApplyEventKindMismatch(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a)

	sync := &domain.SyncEvent{EventBase: domain.EventBase{ChainID: 1, Address: poolAddr}}
	err := a.ApplyEvent(pool, sync)
	if apperror.GetCode(err) != apperror.CodeEventKindMismatch {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeEventKindMismatch)
	}
}

func TestSimulateEmptyTicksFallback(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a)
	pool.Liquidity = mustBig(t, "1000000000000000000000000")

	out, err := a.Simulate(pool, mustBig(t, "1000000000000000000"), true)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if out.Sign() <= 0 {
		t.Errorf("expected positive output, got %s", out)
	}
}

func TestFeePercent(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a)

	if got := a.FeePercent(pool); got != 0.3 {
		t.Errorf("FeePercent = %f, want 0.3", got)
	}
	pool.Fee = 500
	if got := a.FeePercent(pool); got != 0.05 {
		t.Errorf("FeePercent = %f, want 0.05", got)
	}
}
