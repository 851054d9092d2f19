package domain

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/internal/token"
	"github.com/fd1az/market-data-engine/internal/univ3math"
)

var (
	weth = token.New(1, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18, true)
	usdc = token.New(1, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6, true)
)

func TestNewPairID(t *testing.T) {
	tests := []struct {
		a, b string
		want PairID
	}{
		{"WETH", "USDC", "USDC:WETH"},
		{"USDC", "WETH", "USDC:WETH"},
		{"dai", "WETH", "DAI:WETH"},
		{"AAA", "AAA", "AAA:AAA"},
	}
	for _, tt := range tests {
		if got := NewPairID(tt.a, tt.b); got != tt.want {
			t.Errorf("NewPairID(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewTokenPairOnChainOrdering(t *testing.T) {
	// USDC's address sorts before WETH's.
	p1, err := NewTokenPairOnChain(weth, usdc)
	if err != nil {
		t.Fatalf("NewTokenPairOnChain: %v", err)
	}
	p2, err := NewTokenPairOnChain(usdc, weth)
	if err != nil {
		t.Fatalf("NewTokenPairOnChain: %v", err)
	}

	for _, p := range []TokenPairOnChain{p1, p2} {
		if p.Token0.Address() >= p.Token1.Address() {
			t.Errorf("token0 %s must sort below token1 %s", p.Token0.Address(), p.Token1.Address())
		}
	}
	if !p1.Token0.Equals(p2.Token0) {
		t.Error("ordering must be insensitive to argument order")
	}
	if p1.PairID() != "USDC:WETH" {
		t.Errorf("PairID = %s, want USDC:WETH", p1.PairID())
	}
}

func TestNewTokenPairOnChainRejections(t *testing.T) {
	other := token.New(56, common.HexToAddress("0x1111111111111111111111111111111111111111"), "X", "", 18, false)

	if _, err := NewTokenPairOnChain(weth, other); err == nil {
		t.Error("cross-chain pair must be rejected")
	}
	if _, err := NewTokenPairOnChain(weth, weth); err == nil {
		t.Error("identical tokens must be rejected")
	}
	if _, err := NewTokenPairOnChain(nil, weth); err == nil {
		t.Error("nil token must be rejected")
	}
}

func TestEventMetadataOrdering(t *testing.T) {
	base := EventMetadata{BlockNumber: 100, TransactionIndex: 2, LogIndex: 5}

	tests := []struct {
		name  string
		other EventMetadata
		newer bool
	}{
		{"higher_block", EventMetadata{BlockNumber: 101}, true},
		{"same_block_higher_tx", EventMetadata{BlockNumber: 100, TransactionIndex: 3}, true},
		{"same_tx_higher_log", EventMetadata{BlockNumber: 100, TransactionIndex: 2, LogIndex: 6}, true},
		{"equal", base, false},
		{"older_block", EventMetadata{BlockNumber: 99, TransactionIndex: 9, LogIndex: 9}, false},
		{"same_block_older_tx", EventMetadata{BlockNumber: 100, TransactionIndex: 1, LogIndex: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.other.NewerThan(base); got != tt.newer {
				t.Errorf("NewerThan = %v, want %v", got, tt.newer)
			}
		})
	}
}

func TestV2SpotPrices(t *testing.T) {
	pair, _ := NewTokenPairOnChain(weth, usdc)
	pool := &DexV2PoolState{
		TokenPair: pair,
		Address:   common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		Reserve0:  mustBig(t, "101000000000000000000"),  // 1.01e20
		Reserve1:  mustBig(t, "198000000000000000000000"), // 1.98e23
		FeeBps:    30,
	}
	pool.RecomputeSpotPrices()

	want := 1960.396
	if math.Abs(pool.SpotPrice0to1-want) > 0.01 {
		t.Errorf("SpotPrice0to1 = %f, want ~%f", pool.SpotPrice0to1, want)
	}
	if math.Abs(pool.SpotPrice0to1*pool.SpotPrice1to0-1) > 1e-9 {
		t.Errorf("spot prices must be reciprocal")
	}
}

func TestPoolIdentity(t *testing.T) {
	addr := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	if got := DexPoolID(1, addr); got != "1:0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc" {
		t.Errorf("DexPoolID = %s", got)
	}
	if got := CexMarketID("binance", "ETHUSDC"); got != "binance:ETHUSDC" {
		t.Errorf("CexMarketID = %s", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	pair, _ := NewTokenPairOnChain(weth, usdc)
	meta := EventMetadata{BlockNumber: 10}
	pool := &DexV3PoolState{
		StateHeader: StateHeader{
			Venue:           DexVenue(VenueUniswapV3, 1),
			Pair:            pair.PairID(),
			LatestEventMeta: &meta,
		},
		TokenPair:    pair,
		Address:      common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		SqrtPriceX96: new(big.Int).Set(univ3math.Q96),
		Liquidity:    mustBig(t, "1000000000000000000"),
		Tick:         0,
		Fee:          500,
		Ticks: []univ3math.TickData{
			{Tick: -10, LiquidityNet: big.NewInt(100)},
		},
	}

	clone := pool.Clone().(*DexV3PoolState)
	clone.SqrtPriceX96.Add(clone.SqrtPriceX96, big.NewInt(1))
	clone.Ticks[0].LiquidityNet.SetInt64(999)
	clone.Header().LatestEventMeta.BlockNumber = 99

	if pool.SqrtPriceX96.Cmp(univ3math.Q96) != 0 {
		t.Error("clone mutation leaked into original sqrt price")
	}
	if pool.Ticks[0].LiquidityNet.Int64() != 100 {
		t.Error("clone mutation leaked into original ticks")
	}
	if pool.LatestEventMeta.BlockNumber != 10 {
		t.Error("clone mutation leaked into original metadata")
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return v
}
