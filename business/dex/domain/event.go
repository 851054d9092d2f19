package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventMetadata orders events within one chain. The lexicographic triple
// (BlockNumber, TransactionIndex, LogIndex) is a total order.
type EventMetadata struct {
	BlockNumber            uint64
	TransactionIndex       uint
	LogIndex               uint
	TransactionHash        common.Hash
	BlockReceivedTimestamp time.Time
}

// Compare returns -1, 0, or 1 under the lexicographic event order.
func (m EventMetadata) Compare(other EventMetadata) int {
	switch {
	case m.BlockNumber != other.BlockNumber:
		if m.BlockNumber < other.BlockNumber {
			return -1
		}
		return 1
	case m.TransactionIndex != other.TransactionIndex:
		if m.TransactionIndex < other.TransactionIndex {
			return -1
		}
		return 1
	case m.LogIndex != other.LogIndex:
		if m.LogIndex < other.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// NewerThan reports whether m is strictly newer than other.
func (m EventMetadata) NewerThan(other EventMetadata) bool {
	return m.Compare(other) > 0
}

func (m EventMetadata) String() string {
	return fmt.Sprintf("(%d,%d,%d)", m.BlockNumber, m.TransactionIndex, m.LogIndex)
}

// EventKind discriminates decoded pool events.
type EventKind string

const (
	EventV2Sync            EventKind = "v2-sync"
	EventV3Swap            EventKind = "v3-swap"
	EventV3Mint            EventKind = "v3-mint"
	EventV3Burn            EventKind = "v3-burn"
	EventV4Swap            EventKind = "v4-swap"
	EventV4ModifyLiquidity EventKind = "v4-modify-liquidity"
)

// PoolEvent is a decoded on-chain event attributable to one pool.
type PoolEvent interface {
	PoolID() string
	Kind() EventKind
	Metadata() EventMetadata
}

// EventBase carries the fields every pool event shares.
type EventBase struct {
	ChainID uint64
	Address common.Address // emitting contract
	Meta    EventMetadata
}

// DexPoolID builds the canonical DEX pool identity "<chainId>:<address>".
func DexPoolID(chainID uint64, address common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, lowerHex(address))
}

// V4PoolID builds the pool identity for a V4 pool key.
func V4PoolID(chainID uint64, key common.Hash) string {
	return fmt.Sprintf("%d:%s", chainID, key.Hex())
}

// CexMarketID builds the CEX market identity "<exchange>:<rawSymbol>".
func CexMarketID(exchange, rawSymbol string) string {
	return exchange + ":" + rawSymbol
}

func (e EventBase) Metadata() EventMetadata { return e.Meta }

// SyncEvent is a V2 reserve synchronisation.
type SyncEvent struct {
	EventBase
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (e *SyncEvent) PoolID() string  { return DexPoolID(e.ChainID, e.Address) }
func (e *SyncEvent) Kind() EventKind { return EventV2Sync }

// SwapV3Event carries the post-swap pool state of a V3 swap.
type SwapV3Event struct {
	EventBase
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Amount0      *big.Int
	Amount1      *big.Int
}

func (e *SwapV3Event) PoolID() string  { return DexPoolID(e.ChainID, e.Address) }
func (e *SwapV3Event) Kind() EventKind { return EventV3Swap }

// MintV3Event is acknowledged but never applied to state.
type MintV3Event struct {
	EventBase
	TickLower int32
	TickUpper int32
	Amount    *big.Int
}

func (e *MintV3Event) PoolID() string  { return DexPoolID(e.ChainID, e.Address) }
func (e *MintV3Event) Kind() EventKind { return EventV3Mint }

// BurnV3Event is acknowledged but never applied to state.
type BurnV3Event struct {
	EventBase
	TickLower int32
	TickUpper int32
	Amount    *big.Int
}

func (e *BurnV3Event) PoolID() string  { return DexPoolID(e.ChainID, e.Address) }
func (e *BurnV3Event) Kind() EventKind { return EventV3Burn }

// SwapV4Event carries the post-swap state of a V4 swap, addressed by pool key.
type SwapV4Event struct {
	EventBase
	PoolKey      common.Hash
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Fee          uint32
}

func (e *SwapV4Event) PoolID() string  { return V4PoolID(e.ChainID, e.PoolKey) }
func (e *SwapV4Event) Kind() EventKind { return EventV4Swap }

// ModifyLiquidityV4Event is acknowledged but never applied to state.
type ModifyLiquidityV4Event struct {
	EventBase
	PoolKey        common.Hash
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
}

func (e *ModifyLiquidityV4Event) PoolID() string  { return V4PoolID(e.ChainID, e.PoolKey) }
func (e *ModifyLiquidityV4Event) Kind() EventKind { return EventV4ModifyLiquidity }
