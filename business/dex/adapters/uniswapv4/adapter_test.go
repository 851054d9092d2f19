package uniswapv4

import (
	"context"
	"io"
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
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	cc := app.ChainContext{
		ChainID: 1,
		Tokens:  token.NewRegistry(log),
		Log:     log,
	}
	return New(cc, domain.VenueUniswapV4)
}

func TestPoolKeyDeterministic(t *testing.T) {
	k1 := PoolKey(usdc.AddressHex(), weth.AddressHex(), 3000, 60, common.Address{})
	k2 := PoolKey(usdc.AddressHex(), weth.AddressHex(), 3000, 60, common.Address{})
	if k1 != k2 {
		t.Error("pool key must be deterministic")
	}

	k3 := PoolKey(usdc.AddressHex(), weth.AddressHex(), 500, 10, common.Address{})
	if k1 == k3 {
		t.Error("different fee must produce a different key")
	}

	hooked := PoolKey(usdc.AddressHex(), weth.AddressHex(), 3000, 60,
		common.HexToAddress("0x0000000000000000000000000000000000000bad"))
	if k1 == hooked {
		t.Error("hooks address must change the key")
	}
}

func TestTwosComplement(t *testing.T) {
	if got := twosComplement(60); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("positive passthrough failed: %s", got)
	}

	neg := twosComplement(-1)
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if neg.Cmp(want) != 0 {
		t.Errorf("twosComplement(-1) = %s, want all-ones", neg)
	}
}

func TestIntrospectUnknownKeyFails(t *testing.T) {
	a := newAdapter(t)
	ev := &domain.SwapV4Event{
		EventBase:    domain.EventBase{ChainID: 1},
		PoolKey:      common.HexToHash("0xdeadbeef"),
		SqrtPriceX96: new(big.Int).Set(univ3math.Q96),
		Liquidity:    big.NewInt(1),
	}

	_, err := a.IntrospectFromEvent(context.Background(), ev)
	if apperror.GetCode(err) != apperror.CodeUnknownPool {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeUnknownPool)
	}
}

func TestIntrospectIndexedKey(t *testing.T) {
	a := newAdapter(t)
	pair, _ := domain.NewTokenPairOnChain(usdc, weth)
	key := PoolKey(pair.Token0.AddressHex(), pair.Token1.AddressHex(), 3000, 60, common.Address{})

	a.keyIndex[key] = poolStatic{pair: pair, fee: 3000, tickSpacing: 60}

	ev := &domain.SwapV4Event{
		EventBase: domain.EventBase{
			ChainID: 1,
			Meta:    domain.EventMetadata{BlockNumber: 7},
		},
		PoolKey:      key,
		SqrtPriceX96: new(big.Int).Set(univ3math.Q96),
		Liquidity:    big.NewInt(1_000_000),
		Tick:         0,
	}

	state, err := a.IntrospectFromEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("IntrospectFromEvent: %v", err)
	}

	v4 := state.(*domain.DexV4PoolState)
	if v4.Fee != 3000 || v4.TickSpacing != 60 {
		t.Errorf("static fields wrong: fee=%d spacing=%d", v4.Fee, v4.TickSpacing)
	}
	if v4.SqrtPriceX96.Cmp(univ3math.Q96) != 0 {
		t.Error("dynamic fields not taken from event")
	}
	if v4.LatestEventMeta == nil || v4.LatestEventMeta.BlockNumber != 7 {
		t.Error("metadata not recorded")
	}
	if v4.ID() != domain.V4PoolID(1, key) {
		t.Errorf("ID = %s", v4.ID())
	}
}

func TestModifyLiquidityIgnoredForState(t *testing.T) {
	a := newAdapter(t)
	pair, _ := domain.NewTokenPairOnChain(usdc, weth)
	key := PoolKey(pair.Token0.AddressHex(), pair.Token1.AddressHex(), 3000, 60, common.Address{})
	pool := a.newPool(key, poolStatic{pair: pair, fee: 3000, tickSpacing: 60})
	pool.SqrtPriceX96 = new(big.Int).Set(univ3math.Q96)
	pool.Liquidity = big.NewInt(500)

	ev := &domain.ModifyLiquidityV4Event{
		EventBase:      domain.EventBase{ChainID: 1, Meta: domain.EventMetadata{BlockNumber: 9}},
		PoolKey:        key,
		LiquidityDelta: big.NewInt(12345),
	}
	if err := a.ApplyEvent(pool, ev); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if pool.Liquidity.Int64() != 500 {
		t.Error("modify-liquidity must not change state")
	}
	if pool.LatestEventMeta == nil || pool.LatestEventMeta.BlockNumber != 9 {
		t.Error("metadata must still advance")
	}
}
