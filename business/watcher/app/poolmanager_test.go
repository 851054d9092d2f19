package app

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	dexapp "github.com/fd1az/market-data-engine/business/dex/app"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
)

var (
	weth = token.New(1, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", "Wrapped Ether", 18, true)
	usdc = token.New(1, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", "USD Coin", 6, true)

	poolAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

// fakeV2Adapter implements the adapter contract in-memory: introspection
// counts view calls instead of making them.
type fakeV2Adapter struct {
	introspections int
	tokenCalls     int
	refreshes      int
	refreshErr     error
}

func (f *fakeV2Adapter) Protocol() dexapp.Protocol { return dexapp.ProtocolV2 }
func (f *fakeV2Adapter) Venue() dexdomain.VenueID {
	return dexdomain.DexVenue(dexdomain.VenueUniswapV2, 1)
}

func (f *fakeV2Adapter) Discover(context.Context, dexdomain.TokenPairOnChain) ([]dexdomain.VenueState, error) {
	return nil, nil
}

func (f *fakeV2Adapter) IntrospectFromEvent(_ context.Context, ev dexdomain.PoolEvent) (dexdomain.VenueState, error) {
	f.introspections++
	f.tokenCalls += 2 // token0 + token1
	sync := ev.(*dexdomain.SyncEvent)

	pair, _ := dexdomain.NewTokenPairOnChain(usdc, weth)
	pool := &dexdomain.DexV2PoolState{
		StateHeader: dexdomain.StateHeader{
			Venue:             f.Venue(),
			Pair:              pair.PairID(),
			TotalLiquidityUSD: decimal.Zero,
		},
		TokenPair: pair,
		Address:   sync.Address,
		Reserve0:  new(big.Int).Set(sync.Reserve0),
		Reserve1:  new(big.Int).Set(sync.Reserve1),
		FeeBps:    30,
	}
	meta := sync.Meta
	pool.LatestEventMeta = &meta
	return pool, nil
}

func (f *fakeV2Adapter) Refresh(context.Context, dexdomain.VenueState) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeV2Adapter) ApplyEvent(pool dexdomain.VenueState, ev dexdomain.PoolEvent) error {
	sync, ok := ev.(*dexdomain.SyncEvent)
	if !ok {
		return apperror.New(apperror.CodeEventKindMismatch)
	}
	v2 := pool.(*dexdomain.DexV2PoolState)
	v2.Reserve0 = new(big.Int).Set(sync.Reserve0)
	v2.Reserve1 = new(big.Int).Set(sync.Reserve1)
	meta := sync.Meta
	v2.LatestEventMeta = &meta
	return nil
}

func (f *fakeV2Adapter) Simulate(dexdomain.VenueState, *big.Int, bool) (*big.Int, error) {
	return new(big.Int), nil
}

func (f *fakeV2Adapter) Quote(context.Context, dexdomain.VenueState, *big.Int, bool) (dexdomain.TradeQuote, error) {
	return dexdomain.TradeQuote{}, nil
}

func (f *fakeV2Adapter) FeePercent(dexdomain.VenueState) float64 { return 0.3 }

func newManager(t *testing.T) (*PoolManager, *fakeV2Adapter) {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	fake := &fakeV2Adapter{}
	registry, err := dexapp.NewRegistry(log, fake)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m, err := NewPoolManager(1, registry, log)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, fake
}

func syncEvent(block uint64, tx, logIdx uint, r0, r1 int64) *dexdomain.SyncEvent {
	return &dexdomain.SyncEvent{
		EventBase: dexdomain.EventBase{
			ChainID: 1,
			Address: poolAddr,
			Meta: dexdomain.EventMetadata{
				BlockNumber:      block,
				TransactionIndex: tx,
				LogIndex:         logIdx,
			},
		},
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
	}
}

func TestUnknownPoolIsIntrospectedOnce(t *testing.T) {
	m, fake := newManager(t)

	res, err := m.ApplyEvent(context.Background(), syncEvent(100, 0, 0, 1000, 2000))
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !res.Applied || !res.Added {
		t.Errorf("first event: applied=%v added=%v, want both", res.Applied, res.Added)
	}
	if fake.introspections != 1 || fake.tokenCalls != 2 {
		t.Errorf("introspections=%d tokenCalls=%d, want 1/2", fake.introspections, fake.tokenCalls)
	}

	// Known pool: no further introspection.
	res, err = m.ApplyEvent(context.Background(), syncEvent(101, 0, 0, 1100, 1900))
	if err != nil {
		t.Fatalf("second ApplyEvent: %v", err)
	}
	if res.Added {
		t.Error("second event must not re-add the pool")
	}
	if fake.introspections != 1 {
		t.Errorf("introspections = %d, want 1", fake.introspections)
	}
}

func TestOutdatedEventsAreDropped(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.ApplyEvent(ctx, syncEvent(100, 0, 0, 1000, 2000)); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	// Same metadata: dropped.
	res, err := m.ApplyEvent(ctx, syncEvent(100, 0, 0, 9999, 9999))
	if apperror.GetCode(err) != apperror.CodeOutdatedEvent {
		t.Errorf("same metadata: code = %s, want %s", apperror.GetCode(err), apperror.CodeOutdatedEvent)
	}
	if res.Applied {
		t.Error("outdated event must not apply")
	}

	// Strictly older: dropped.
	if _, err := m.ApplyEvent(ctx, syncEvent(99, 5, 5, 1, 1)); apperror.GetCode(err) != apperror.CodeOutdatedEvent {
		t.Errorf("older metadata: code = %s", apperror.GetCode(err))
	}

	// Reserves must reflect the first event only.
	pool, _ := m.Get(dexdomain.DexPoolID(1, poolAddr))
	v2 := pool.(*dexdomain.DexV2PoolState)
	if v2.Reserve0.Int64() != 1000 {
		t.Errorf("reserve0 = %d, want 1000", v2.Reserve0.Int64())
	}

	// Newer event in the same block applies.
	if _, err := m.ApplyEvent(ctx, syncEvent(100, 0, 1, 1500, 1500)); err != nil {
		t.Fatalf("newer event: %v", err)
	}
	if v2.Reserve0.Int64() != 1500 {
		t.Errorf("reserve0 = %d, want 1500", v2.Reserve0.Int64())
	}
}

func TestMetadataMonotonicityInvariant(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	events := []*dexdomain.SyncEvent{
		syncEvent(100, 0, 0, 1, 1),
		syncEvent(100, 0, 2, 2, 2),
		syncEvent(100, 1, 0, 3, 3),
		syncEvent(100, 0, 1, 99, 99), // out of order, must drop
		syncEvent(101, 0, 0, 4, 4),
	}

	var lastApplied dexdomain.EventMetadata
	for _, ev := range events {
		res, _ := m.ApplyEvent(ctx, ev)
		if res.Applied {
			if !ev.Meta.NewerThan(lastApplied) && lastApplied != (dexdomain.EventMetadata{}) {
				t.Errorf("applied event %s not newer than %s", ev.Meta, lastApplied)
			}
			lastApplied = ev.Meta
		}
	}

	pool, _ := m.Get(dexdomain.DexPoolID(1, poolAddr))
	v2 := pool.(*dexdomain.DexV2PoolState)
	if v2.Reserve0.Int64() != 4 {
		t.Errorf("final reserve0 = %d, want 4", v2.Reserve0.Int64())
	}
	if v2.LatestEventMeta.BlockNumber != 101 {
		t.Errorf("final metadata block = %d, want 101", v2.LatestEventMeta.BlockNumber)
	}
}

func TestDrainDirtyReturnsClones(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.ApplyEvent(ctx, syncEvent(100, 0, 0, 1000, 2000)); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	drained := m.DrainDirty()
	if len(drained) != 1 {
		t.Fatalf("drained %d pools, want 1", len(drained))
	}

	// Mutating the clone must not touch the manager's copy.
	clone := drained[0].(*dexdomain.DexV2PoolState)
	clone.Reserve0.SetInt64(-1)

	orig, _ := m.Get(clone.ID())
	if orig.(*dexdomain.DexV2PoolState).Reserve0.Int64() != 1000 {
		t.Error("clone mutation leaked into manager state")
	}

	// Second drain with no new events is empty.
	if got := m.DrainDirty(); len(got) != 0 {
		t.Errorf("second drain returned %d pools, want 0", len(got))
	}
}

func TestArePoolsFresh(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.ApplyEvent(ctx, syncEvent(100, 0, 0, 1000, 2000)); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	id := dexdomain.DexPoolID(1, poolAddr)

	if !m.ArePoolsFresh([]string{id}) {
		t.Error("pool must be fresh after apply")
	}
	if m.ArePoolsFresh([]string{"1:0xmissing"}) {
		t.Error("missing pool cannot be fresh")
	}

	// Simulate the pool drifting ahead of the manager's bookkeeping.
	pool, _ := m.Get(id)
	pool.Header().LatestEventMeta.BlockNumber = 200
	if m.ArePoolsFresh([]string{id}) {
		t.Error("manager behind pool metadata must not be fresh")
	}
}

func TestUpdateAllContinuesOnFailure(t *testing.T) {
	m, fake := newManager(t)
	ctx := context.Background()

	if _, err := m.ApplyEvent(ctx, syncEvent(100, 0, 0, 1, 1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fake.refreshErr = apperror.New(apperror.CodeRPCError)

	// Must not panic or abort; failure is logged per pool.
	m.UpdateAll(ctx)
	if fake.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", fake.refreshes)
	}
}
