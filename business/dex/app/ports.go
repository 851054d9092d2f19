// Package app contains the adapter contract and the protocol registry for
// the dex context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/dex/infra/ethrpc"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
)

// Protocol identifies an AMM protocol family.
type Protocol string

const (
	ProtocolV2 Protocol = "v2"
	ProtocolV3 Protocol = "v3"
	ProtocolV4 Protocol = "v4"
)

// Adapter is the per-protocol capability set. Each variant works on its own
// VenueState shape; giving an adapter a foreign state or event fails with
// EventKindMismatch.
type Adapter interface {
	// Protocol returns the protocol family this adapter speaks.
	Protocol() Protocol

	// Venue returns the venue this adapter instance serves.
	Venue() domain.VenueID

	// Discover returns all pools for the ordered pair, dynamic fields
	// zeroed. "No pool" is an empty result, not an error.
	Discover(ctx context.Context, pair domain.TokenPairOnChain) ([]domain.VenueState, error)

	// IntrospectFromEvent builds a fully-initialised state for an unknown
	// pool from its first event, resolving tokens on chain as needed.
	IntrospectFromEvent(ctx context.Context, ev domain.PoolEvent) (domain.VenueState, error)

	// Refresh re-reads the pool's dynamic fields over RPC.
	Refresh(ctx context.Context, pool domain.VenueState) error

	// ApplyEvent mutates the pool from a decoded event.
	ApplyEvent(pool domain.VenueState, ev domain.PoolEvent) error

	// Simulate computes the exact-input output amount locally.
	Simulate(pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (*big.Int, error)

	// Quote produces a TradeQuote with execution price and impact.
	Quote(ctx context.Context, pool domain.VenueState, amountIn *big.Int, zeroForOne bool) (domain.TradeQuote, error)

	// FeePercent returns the pool fee as a percentage.
	FeePercent(pool domain.VenueState) float64
}

// ChainContext is the shared state handed to every adapter on a chain:
// the RPC handle, the token registry, and the venue's contract addresses.
type ChainContext struct {
	ChainID uint64
	RPC     *ethrpc.Client
	Tokens  *token.Registry
	Log     logger.LoggerInterface

	// V2/V3 deployments.
	Factory common.Address
	Router  common.Address
	Quoter  common.Address

	// V4 deployment.
	PoolManager common.Address
	StateView   common.Address

	InitCodeHash common.Hash
}
