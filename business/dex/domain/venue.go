// Package domain contains the core market-data model: venues, pairs, pool
// states, and pool events.
package domain

import "fmt"

// VenueName is the closed set of venues the engine knows about.
type VenueName string

const (
	VenueUniswapV2   VenueName = "uniswap-v2"
	VenueUniswapV3   VenueName = "uniswap-v3"
	VenueUniswapV4   VenueName = "uniswap-v4"
	VenueSushiswap   VenueName = "sushiswap"
	VenuePancakeswap VenueName = "pancakeswap"
	VenueBinance     VenueName = "binance"
)

// VenueKind discriminates DEX venues from CEX venues.
type VenueKind string

const (
	VenueKindDex VenueKind = "dex"
	VenueKindCex VenueKind = "cex"
)

// VenueID identifies a place where a pair trades: a DEX on one chain, or a
// centralised exchange. The zero ChainID marks a CEX.
type VenueID struct {
	Kind    VenueKind
	Name    VenueName
	ChainID uint64 // 0 for CEX
}

// DexVenue creates the id of a DEX deployment on a chain.
func DexVenue(name VenueName, chainID uint64) VenueID {
	return VenueID{Kind: VenueKindDex, Name: name, ChainID: chainID}
}

// CexVenue creates the id of a centralised exchange.
func CexVenue(name VenueName) VenueID {
	return VenueID{Kind: VenueKindCex, Name: name}
}

func (v VenueID) IsDex() bool { return v.Kind == VenueKindDex }

func (v VenueID) String() string {
	if v.IsDex() {
		return fmt.Sprintf("%s@%d", v.Name, v.ChainID)
	}
	return string(v.Name)
}
