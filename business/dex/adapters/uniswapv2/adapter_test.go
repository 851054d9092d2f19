package uniswapv2

import (
	"context"
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
)

var (
	weth = token.New(1, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18, true)
	usdc = token.New(1, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6, true)

	poolAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	cc := app.ChainContext{
		ChainID: 1,
		Tokens:  token.NewRegistry(log),
		Log:     log,
	}
	return New(cc, domain.VenueUniswapV2)
}

func seedPool(t *testing.T, a *Adapter, r0, r1 string) *domain.DexV2PoolState {
	t.Helper()
	pair, err := domain.NewTokenPairOnChain(weth, usdc)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	pool := a.newPool(pair, poolAddr)
	pool.Reserve0 = mustBig(t, r0)
	pool.Reserve1 = mustBig(t, r1)
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

func syncEvent(r0, r1 *big.Int, block uint64, tx, log uint) *domain.SyncEvent {
	return &domain.SyncEvent{
		EventBase: domain.EventBase{
			ChainID: 1,
			Address: poolAddr,
			Meta: domain.EventMetadata{
				BlockNumber:      block,
				TransactionIndex: tx,
				LogIndex:         log,
			},
		},
		Reserve0: r0,
		Reserve1: r1,
	}
}

func TestApplySyncUpdatesReservesAndSpot(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a, "100000000000000000000", "200000000000000000000000")

	ev := syncEvent(
		mustBig(t, "101000000000000000000"),
		mustBig(t, "198000000000000000000000"),
		100, 0, 0)

	if err := a.ApplyEvent(pool, ev); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if pool.Reserve0.Cmp(ev.Reserve0) != 0 || pool.Reserve1.Cmp(ev.Reserve1) != 0 {
		t.Error("reserves not updated")
	}
	want := 1960.4
	if math.Abs(pool.SpotPrice0to1-want) > 0.1 {
		t.Errorf("SpotPrice0to1 = %f, want ~%f", pool.SpotPrice0to1, want)
	}
	if pool.LatestEventMeta == nil || pool.LatestEventMeta.BlockNumber != 100 {
		t.Error("event metadata not recorded")
	}
}

func TestApplySyncIsIdempotent(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a, "100000000000000000000", "200000000000000000000000")
	ev := syncEvent(mustBig(t, "50"), mustBig(t, "100"), 10, 1, 2)

	if err := a.ApplyEvent(pool, ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := *pool
	if err := a.ApplyEvent(pool, ev); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if pool.Reserve0.Cmp(first.Reserve0) != 0 || pool.SpotPrice0to1 != first.SpotPrice0to1 {
		t.Error("second identical apply changed state")
	}
}

func TestApplyEventKindMismatch(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a, "1000", "1000")

	swap := &domain.SwapV3Event{EventBase: domain.EventBase{ChainID: 1, Address: poolAddr}}
	err := a.ApplyEvent(pool, swap)
	if apperror.GetCode(err) != apperror.CodeEventKindMismatch {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeEventKindMismatch)
	}
}

func TestSimulateConstantProduct(t *testing.T) {
	a := newAdapter(t)
	// 100 units token0, 200_000 token1 (raw, equal decimals for clarity).
	pool := seedPool(t, a, "100000000000000000000", "200000000000000000000000")

	amountIn := mustBig(t, "1000000000000000000") // 1 token0
	out, err := a.Simulate(pool, amountIn, true)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	// inWithFee = 0.997; out = 0.997 * 200000 / 100.997 = 1974.31...
	want := mustBig(t, "1974315387297498787359")
	diff := new(big.Int).Abs(new(big.Int).Sub(out, want))
	if diff.Cmp(mustBig(t, "1000000000000000")) > 0 {
		t.Errorf("Simulate = %s, want ~%s", out, want)
	}
}

func TestSimulateValidation(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a, "1000000", "1000000")

	tests := []struct {
		name     string
		reserve0 string
		amountIn *big.Int
		wantCode apperror.Code
	}{
		{"zero_amount", "1000000", new(big.Int), apperror.CodeInvalidAmount},
		{"negative_amount", "1000000", big.NewInt(-5), apperror.CodeInvalidAmount},
		{"zero_reserve", "0", big.NewInt(100), apperror.CodeInsufficientLiquidity},
		{"exceeds_reserve", "1000000", mustBig(t, "2000000"), apperror.CodeInsufficientLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool.Reserve0 = mustBig(t, tt.reserve0)
			_, err := a.Simulate(pool, tt.amountIn, true)
			if apperror.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", apperror.GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestQuoteExecutionWithinOnePercentOfSpot(t *testing.T) {
	a := newAdapter(t)
	pool := seedPool(t, a, "100000000000000000000000", "200000000000000000000000000")

	// Small trade relative to reserves: execution should sit within 1% of
	// spot (the 0.3% fee dominates).
	amountIn := mustBig(t, "1000000000000000000")
	q, err := a.Quote(context.Background(), pool, amountIn, true)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	exec, _ := q.ExecutionPrice.Float64()
	spot := pool.SpotPrice0to1
	if math.Abs(exec-spot)/spot > 0.01 {
		t.Errorf("execution %f deviates more than 1%% from spot %f", exec, spot)
	}
	if q.Confidence != domain.ConfidenceSimulated {
		t.Errorf("confidence = %s", q.Confidence)
	}
}

func TestFeePercent(t *testing.T) {
	a := newAdapter(t)
	if got := a.FeePercent(nil); got != 0.3 {
		t.Errorf("FeePercent = %f, want 0.3", got)
	}
}
