package app

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	watcherapp "github.com/fd1az/market-data-engine/business/watcher/app"
	watcherdomain "github.com/fd1az/market-data-engine/business/watcher/domain"
	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// Service is the aggregator unit: it consumes watcher events off the bus,
// maintains the store, and drives the oracle off the store's change feed.
type Service struct {
	store  *Store
	oracle *Oracle
	bus    *bus.Bus
	log    logger.LoggerInterface

	unsubscribe func()
}

// NewService wires the aggregator behind the bus.
func NewService(store *Store, oracle *Oracle, b *bus.Bus, log logger.LoggerInterface) *Service {
	return &Service{store: store, oracle: oracle, bus: b, log: log}
}

// Start subscribes to worker events. Handlers run on the publishing
// worker's send path, so they stay short: apply deltas, notify, return.
func (s *Service) Start(ctx context.Context) {
	s.unsubscribe = s.bus.Subscribe(func(ev bus.Event) {
		s.handleEvent(ctx, ev)
	})
}

// Stop detaches from the bus.
func (s *Service) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Store exposes the underlying store for synchronous queries.
func (s *Service) Store() *Store { return s.store }

// Oracle exposes the price oracle.
func (s *Service) Oracle() *Oracle { return s.oracle }

func (s *Service) handleEvent(ctx context.Context, ev bus.Event) {
	switch watcherdomain.AppEventName(ev.Name) {
	case watcherdomain.AppPoolUpdateBatch:
		batch, ok := ev.Data.(watcherapp.Batch)
		if !ok {
			s.log.Warn(ctx, "malformed pool-update-batch", "worker", ev.WorkerID)
			return
		}
		s.applyBatch(ctx, batch.UpdatedPools)

	case watcherdomain.AppPoolStatesUpdated:
		s.log.Info(ctx, "watcher completed reorg refresh", "worker", ev.WorkerID)

	case watcherdomain.AppReorgDetected:
		s.log.Warn(ctx, "watcher detected reorg", "worker", ev.WorkerID)

	case watcherdomain.AppWorkerInitialized:
		s.log.Info(ctx, "watcher initialized", "worker", ev.WorkerID)
	}
}

// ApplyCexUpdate folds one CEX market state into the store.
func (s *Service) ApplyCexUpdate(state *dexdomain.CexMarketState) {
	s.store.Set(state)
}

// applyBatch stores the deltas, estimates USD liquidity, and floods
// prices. Order matters: indices and listeners first, then the oracle
// sees the batch in delivery order.
func (s *Service) applyBatch(ctx context.Context, pools []dexdomain.VenueState) {
	if len(pools) == 0 {
		return
	}

	s.store.SetBatch(pools)
	s.oracle.OnPoolsUpdated(ctx, pools)

	for _, pool := range pools {
		s.updateLiquidityUSD(pool)
	}
}

// updateLiquidityUSD estimates totalLiquidityInUSD as twice the USD value
// of whichever side has a known price.
func (s *Service) updateLiquidityUSD(state dexdomain.VenueState) {
	pair, ok := statePair(state)
	if !ok {
		return
	}

	reserve0, reserve1 := stateReserves(state)
	if reserve0 == nil || reserve1 == nil {
		return
	}

	if price0, known := s.oracle.Price(pair.ChainID(), pair.Token0.Address()); known {
		side := decimal.NewFromBigInt(reserve0, -int32(pair.Token0.Decimals()))
		state.Header().TotalLiquidityUSD = side.Mul(decimal.NewFromFloat(price0)).Mul(decimal.NewFromInt(2))
		return
	}
	if price1, known := s.oracle.Price(pair.ChainID(), pair.Token1.Address()); known {
		side := decimal.NewFromBigInt(reserve1, -int32(pair.Token1.Decimals()))
		state.Header().TotalLiquidityUSD = side.Mul(decimal.NewFromFloat(price1)).Mul(decimal.NewFromInt(2))
	}
}

// stateReserves extracts real or virtual reserves for liquidity estimates.
func stateReserves(state dexdomain.VenueState) (*big.Int, *big.Int) {
	switch t := state.(type) {
	case *dexdomain.DexV2PoolState:
		return t.Reserve0, t.Reserve1
	case *dexdomain.DexV3PoolState:
		a, b := t.VirtualReserves()
		return a, b
	case *dexdomain.DexV4PoolState:
		a, b := t.VirtualReserves()
		return a, b
	}
	return nil, nil
}
