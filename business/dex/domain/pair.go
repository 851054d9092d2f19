package domain

import (
	"fmt"
	"strings"

	"github.com/fd1az/market-data-engine/internal/token"
)

// PairID is the venue-agnostic grouping key for a logical market: both
// symbols sorted alphabetically and joined with ":". Never used for
// trading-path math.
type PairID string

// NewPairID builds the canonical pair id from two symbols.
func NewPairID(symbolA, symbolB string) PairID {
	a, b := strings.ToUpper(symbolA), strings.ToUpper(symbolB)
	if a > b {
		a, b = b, a
	}
	return PairID(a + ":" + b)
}

// TokenPairOnChain is an ordered on-chain token pair. Token0's address is
// byte-lexicographically smaller than token1's; this is the order the AMM
// contracts use and it must never be flipped.
type TokenPairOnChain struct {
	Token0 *token.Token
	Token1 *token.Token
}

// NewTokenPairOnChain orders two tokens into on-chain order.
func NewTokenPairOnChain(a, b *token.Token) (TokenPairOnChain, error) {
	if a == nil || b == nil {
		return TokenPairOnChain{}, fmt.Errorf("token pair: nil token")
	}
	if a.ChainID() != b.ChainID() {
		return TokenPairOnChain{}, fmt.Errorf("token pair: chain mismatch %d != %d", a.ChainID(), b.ChainID())
	}
	if a.Address() == b.Address() {
		return TokenPairOnChain{}, fmt.Errorf("token pair: identical tokens %s", a.Address())
	}
	if a.Address() > b.Address() {
		a, b = b, a
	}
	return TokenPairOnChain{Token0: a, Token1: b}, nil
}

// PairID returns the sorted-symbol grouping key for this pair.
func (p TokenPairOnChain) PairID() PairID {
	return NewPairID(p.Token0.Symbol(), p.Token1.Symbol())
}

// SymbolKey is the advisory "sym0-sym1" key in on-chain order.
func (p TokenPairOnChain) SymbolKey() string {
	return p.Token0.Symbol() + "-" + p.Token1.Symbol()
}

// AddressKey is the sorted address pair key "addr0-addr1".
func (p TokenPairOnChain) AddressKey() string {
	return p.Token0.Address() + "-" + p.Token1.Address()
}

// ChainID returns the chain both tokens live on.
func (p TokenPairOnChain) ChainID() uint64 {
	return p.Token0.ChainID()
}
