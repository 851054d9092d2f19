// Package token provides the canonical token model and the per-chain
// registry. A token's identity is its (chainID, address); the symbol is
// advisory metadata. Tokens are created once and never mutated.
package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the canonical metadata of an ERC-20 token on one chain.
type Token struct {
	chainID  uint64
	address  string // lowercase hex, primary key on chain
	symbol   string
	name     string
	decimals uint8
	trusted  bool
}

// New creates a Token. The address is normalised to lowercase hex.
func New(chainID uint64, address common.Address, symbol, name string, decimals uint8, trusted bool) *Token {
	if symbol == "" {
		symbol = shortAddress(address)
	}
	if decimals > 30 {
		panic("token: suspicious decimals (>30)")
	}
	return &Token{
		chainID:  chainID,
		address:  strings.ToLower(address.Hex()),
		symbol:   symbol,
		name:     name,
		decimals: decimals,
		trusted:  trusted,
	}
}

func (t *Token) ChainID() uint64 { return t.chainID }

// Address returns the lowercase hex contract address.
func (t *Token) Address() string { return t.address }

// AddressHex returns the address as common.Address.
func (t *Token) AddressHex() common.Address { return common.HexToAddress(t.address) }

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) Name() string {
	if t.name == "" {
		return t.symbol
	}
	return t.name
}

func (t *Token) Decimals() uint8 { return t.decimals }

// Trusted reports whether the token came from the configured trusted list.
func (t *Token) Trusted() bool { return t.trusted }

// Key is the oracle/registry lookup key "chainId:address".
func (t *Token) Key() string {
	return fmt.Sprintf("%d:%s", t.chainID, t.address)
}

func (t *Token) String() string { return t.symbol }

// Equals compares tokens by identity.
func (t *Token) Equals(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.chainID == other.chainID && t.address == other.address
}

func shortAddress(addr common.Address) string {
	return addr.Hex()[:8]
}
