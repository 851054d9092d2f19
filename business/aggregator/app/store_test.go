package app

import (
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	aggdomain "github.com/fd1az/market-data-engine/business/aggregator/domain"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
)

var (
	weth = token.New(1, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18, true)
	usdc = token.New(1, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6, true)
	dai  = token.New(1, common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), "DAI", "Dai Stablecoin", 18, true)
)

func newStore() *Store {
	return NewStore(logger.New(io.Discard, logger.LevelDebug, "test", nil))
}

func seedPool(t *testing.T, a, b *token.Token, addr string, r0, r1 int64) *dexdomain.DexV2PoolState {
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
		TokenPair: pair,
		Address:   common.HexToAddress(addr),
		Reserve0:  big.NewInt(r0),
		Reserve1:  big.NewInt(r1),
		FeeBps:    30,
	}
	pool.RecomputeSpotPrices()
	return pool
}

func TestIndexingLifecycle(t *testing.T) {
	s := newStore()
	pool := seedPool(t, weth, usdc, "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640", 1000, 2500000)
	s.Set(pool)

	if got := s.ByPair(weth, usdc); len(got) != 1 || got[0].ID() != pool.ID() {
		t.Errorf("ByPair = %v", got)
	}
	if got := s.BySymbolPair("USDC", "WETH"); len(got) != 1 {
		t.Errorf("BySymbolPair = %v", got)
	}
	if got := s.ByToken(weth); len(got) != 1 {
		t.Errorf("ByToken = %v", got)
	}
	if got := s.ByChain(1); len(got) != 1 {
		t.Errorf("ByChain = %v", got)
	}
	if got := s.ByVenue(dexdomain.VenueUniswapV2); len(got) != 1 {
		t.Errorf("ByVenue = %v", got)
	}

	// Remove: every index returns empty.
	if !s.Remove(pool.ID()) {
		t.Fatal("Remove returned false")
	}
	if len(s.ByPair(weth, usdc)) != 0 || len(s.BySymbolPair("USDC", "WETH")) != 0 ||
		len(s.ByToken(weth)) != 0 || len(s.ByChain(1)) != 0 ||
		len(s.ByVenue(dexdomain.VenueUniswapV2)) != 0 {
		t.Error("indices not emptied after remove")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestIndicesAreExactInverses(t *testing.T) {
	s := newStore()
	pools := []*dexdomain.DexV2PoolState{
		seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000001", 1, 1),
		seedPool(t, weth, dai, "0x0000000000000000000000000000000000000002", 1, 1),
		seedPool(t, usdc, dai, "0x0000000000000000000000000000000000000003", 1, 1),
	}
	for _, p := range pools {
		s.Set(p)
	}

	// byChain must contain exactly the pools whose chain matches.
	chainIDs := map[string]bool{}
	for _, st := range s.ByChain(1) {
		chainIDs[st.ID()] = true
	}
	for _, p := range pools {
		if !chainIDs[p.ID()] {
			t.Errorf("pool %s missing from byChain", p.ID())
		}
	}

	// byToken(weth) must contain exactly the two WETH pools.
	wethPools := s.ByToken(weth)
	if len(wethPools) != 2 {
		t.Errorf("ByToken(weth) = %d pools, want 2", len(wethPools))
	}
	for _, st := range wethPools {
		pair, _ := statePair(st)
		if pair.Token0.Key() != weth.Key() && pair.Token1.Key() != weth.Key() {
			t.Errorf("pool %s in byToken(weth) without weth", st.ID())
		}
	}
}

func TestSetTwiceNotifiesAddThenUpdate(t *testing.T) {
	s := newStore()
	var changes []aggdomain.ChangeType
	s.Subscribe(func(c aggdomain.Change) { changes = append(changes, c.Type) })

	pool := seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000004", 10, 10)
	s.Set(pool)
	sizeAfterFirst := s.Len()

	s.Set(pool)

	if len(changes) != 2 || changes[0] != aggdomain.ChangeAdd || changes[1] != aggdomain.ChangeUpdate {
		t.Errorf("changes = %v, want [add update]", changes)
	}
	if s.Len() != sizeAfterFirst {
		t.Error("second set changed the primary size")
	}
	if got := len(s.ByToken(weth)); got != 1 {
		t.Errorf("index size changed on second set: %d", got)
	}
}

func TestListenersRunInRegistrationOrderAndSurvivePanic(t *testing.T) {
	s := newStore()
	var order []int

	s.Subscribe(func(aggdomain.Change) { order = append(order, 1) })
	s.Subscribe(func(aggdomain.Change) { panic("listener bug") })
	s.Subscribe(func(aggdomain.Change) { order = append(order, 3) })

	pool := seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000005", 10, 10)
	s.Set(pool) // must not panic

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("order = %v, want [1 3]", order)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newStore()
	count := 0
	unsubscribe := s.Subscribe(func(aggdomain.Change) { count++ })

	pool := seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000006", 10, 10)
	s.Set(pool)
	unsubscribe()
	s.Set(pool)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestSetDisabledDoesNotNotify(t *testing.T) {
	s := newStore()
	pool := seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000007", 10, 10)
	s.Set(pool)

	notified := false
	s.Subscribe(func(aggdomain.Change) { notified = true })

	if !s.SetDisabled(pool.ID(), true) {
		t.Fatal("SetDisabled returned false")
	}
	if notified {
		t.Error("SetDisabled must not notify")
	}

	if got := s.GetActive(); len(got) != 0 {
		t.Errorf("GetActive = %d states, want 0", len(got))
	}
}

func TestComputeStats(t *testing.T) {
	s := newStore()
	s.Set(seedPool(t, weth, usdc, "0x0000000000000000000000000000000000000008", 1, 1))
	s.Set(seedPool(t, weth, dai, "0x0000000000000000000000000000000000000009", 1, 1))

	stats := s.ComputeStats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByChain[1] != 2 {
		t.Errorf("ByChain[1] = %d, want 2", stats.ByChain[1])
	}
	if stats.ByVenue[dexdomain.VenueUniswapV2] != 2 {
		t.Errorf("ByVenue = %d, want 2", stats.ByVenue[dexdomain.VenueUniswapV2])
	}
}
