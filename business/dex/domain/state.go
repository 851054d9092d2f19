package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/market-data-engine/internal/univ3math"
)

// StateKind discriminates VenueState variants.
type StateKind string

const (
	StateDexV2 StateKind = "dex-v2"
	StateDexV3 StateKind = "dex-v3"
	StateDexV4 StateKind = "dex-v4"
	StateCex   StateKind = "cex"
)

// VenueState is the discriminated union of per-venue market state. Each
// watcher owns its states; the aggregator holds independent clones.
type VenueState interface {
	// ID is the globally unique identity: "<chainId>:<poolAddress>" for a
	// DEX pool, "<exchange>:<rawSymbol>" for a CEX market.
	ID() string
	Kind() StateKind
	Header() *StateHeader
	Clone() VenueState
}

// StateHeader carries the fields every venue state shares.
type StateHeader struct {
	Venue             VenueID
	Pair              PairID
	LatestEventMeta   *EventMetadata
	TotalLiquidityUSD decimal.Decimal
	Disabled          bool
}

func (h *StateHeader) cloneHeader() StateHeader {
	out := *h
	if h.LatestEventMeta != nil {
		meta := *h.LatestEventMeta
		out.LatestEventMeta = &meta
	}
	return out
}

// DexV2PoolState is a constant-product pool: two reserves and a fixed
// 30 bps fee (parts per 10_000).
type DexV2PoolState struct {
	StateHeader
	TokenPair TokenPairOnChain
	Address   common.Address
	Reserve0  *big.Int
	Reserve1  *big.Int
	FeeBps    uint32

	// Spot prices are derived doubles for display and oracle use only.
	SpotPrice0to1 float64
	SpotPrice1to0 float64
}

func (s *DexV2PoolState) ID() string           { return DexPoolID(s.TokenPair.ChainID(), s.Address) }
func (s *DexV2PoolState) Kind() StateKind      { return StateDexV2 }
func (s *DexV2PoolState) Header() *StateHeader { return &s.StateHeader }

func (s *DexV2PoolState) Clone() VenueState {
	out := *s
	out.StateHeader = s.cloneHeader()
	out.Reserve0 = cloneBig(s.Reserve0)
	out.Reserve1 = cloneBig(s.Reserve1)
	return &out
}

// RecomputeSpotPrices refreshes the derived spot prices from the raw
// reserve ratio.
func (s *DexV2PoolState) RecomputeSpotPrices() {
	s.SpotPrice0to1, s.SpotPrice1to0 = 0, 0
	if s.Reserve0 == nil || s.Reserve1 == nil || s.Reserve0.Sign() == 0 || s.Reserve1.Sign() == 0 {
		return
	}

	r0 := new(big.Float).SetInt(s.Reserve0)
	r1 := new(big.Float).SetInt(s.Reserve1)
	s.SpotPrice0to1, _ = new(big.Float).Quo(r1, r0).Float64()
	if s.SpotPrice0to1 != 0 {
		s.SpotPrice1to0 = 1 / s.SpotPrice0to1
	}
}

// DexV3PoolState is a concentrated-liquidity pool. Fee is in parts per
// million; Ticks is strictly sorted ascending with unique tick values.
type DexV3PoolState struct {
	StateHeader
	TokenPair   TokenPairOnChain
	Address     common.Address
	SqrtPriceX96 *big.Int
	Tick        int32
	Liquidity   *big.Int
	TickSpacing int32
	Fee         uint32
	Ticks       []univ3math.TickData

	SpotPrice0to1 float64
	SpotPrice1to0 float64
}

func (s *DexV3PoolState) ID() string           { return DexPoolID(s.TokenPair.ChainID(), s.Address) }
func (s *DexV3PoolState) Kind() StateKind      { return StateDexV3 }
func (s *DexV3PoolState) Header() *StateHeader { return &s.StateHeader }

func (s *DexV3PoolState) Clone() VenueState {
	out := *s
	out.StateHeader = s.cloneHeader()
	out.SqrtPriceX96 = cloneBig(s.SqrtPriceX96)
	out.Liquidity = cloneBig(s.Liquidity)
	out.Ticks = cloneTicks(s.Ticks)
	return &out
}

// RecomputeSpotPrices refreshes the derived spot prices from the sqrt price.
func (s *DexV3PoolState) RecomputeSpotPrices() {
	s.SpotPrice0to1 = univ3math.SqrtPriceX96ToPrice(s.SqrtPriceX96,
		s.TokenPair.Token0.Decimals(), s.TokenPair.Token1.Decimals())
	if s.SpotPrice0to1 != 0 {
		s.SpotPrice1to0 = 1 / s.SpotPrice0to1
	} else {
		s.SpotPrice1to0 = 0
	}
}

// VirtualReserves derives display-only V2-equivalent reserves.
func (s *DexV3PoolState) VirtualReserves() (*big.Int, *big.Int) {
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	return univ3math.VirtualReserves(s.SqrtPriceX96, s.Liquidity)
}

// DexV4PoolState is a V3-shaped pool addressed by a 32-byte pool key and
// managed by a singleton pool manager, optionally with hooks.
type DexV4PoolState struct {
	DexV3PoolState
	PoolKey common.Hash
	Hooks   common.Address
	Manager common.Address
}

func (s *DexV4PoolState) ID() string      { return V4PoolID(s.TokenPair.ChainID(), s.PoolKey) }
func (s *DexV4PoolState) Kind() StateKind { return StateDexV4 }

func (s *DexV4PoolState) Clone() VenueState {
	out := *s
	out.StateHeader = s.cloneHeader()
	out.SqrtPriceX96 = cloneBig(s.SqrtPriceX96)
	out.Liquidity = cloneBig(s.Liquidity)
	out.Ticks = cloneTicks(s.Ticks)
	return &out
}

// HasHooks reports whether the pool has a non-zero hooks address, which
// makes local simulation approximate.
func (s *DexV4PoolState) HasHooks() bool {
	return s.Hooks != (common.Address{})
}

// PriceLevel is one rung of a CEX depth ladder.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// CexMarketState is the best-bid/ask view of a centralised market.
type CexMarketState struct {
	StateHeader
	Exchange  string
	RawSymbol string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Bids      []PriceLevel
	Asks      []PriceLevel
}

func (s *CexMarketState) ID() string           { return CexMarketID(s.Exchange, s.RawSymbol) }
func (s *CexMarketState) Kind() StateKind      { return StateCex }
func (s *CexMarketState) Header() *StateHeader { return &s.StateHeader }

func (s *CexMarketState) Clone() VenueState {
	out := *s
	out.StateHeader = s.cloneHeader()
	out.Bids = append([]PriceLevel(nil), s.Bids...)
	out.Asks = append([]PriceLevel(nil), s.Asks...)
	return &out
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneTicks(ticks []univ3math.TickData) []univ3math.TickData {
	if ticks == nil {
		return nil
	}
	out := make([]univ3math.TickData, len(ticks))
	for i, t := range ticks {
		out[i] = univ3math.TickData{Tick: t.Tick, LiquidityNet: cloneBig(t.LiquidityNet)}
	}
	return out
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
