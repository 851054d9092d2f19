package token

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// Metadata is the raw result of an on-chain ERC-20 introspection.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Introspector reads ERC-20 metadata from the chain. Implemented by the
// watcher's RPC layer; called at most once per unknown address.
type Introspector interface {
	TokenMetadata(ctx context.Context, chainID uint64, address common.Address) (Metadata, error)
}

// Registry is a thread-safe registry of known tokens across chains.
type Registry struct {
	log logger.LoggerInterface

	mu       sync.RWMutex
	byChain  map[uint64]map[string]*Token // chainID -> lowercase address -> token
	bySymbol map[string][]*Token
	inflight map[string]error // memoised introspection failures
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.LoggerInterface) *Registry {
	return &Registry{
		log:      log,
		byChain:  make(map[uint64]map[string]*Token),
		bySymbol: make(map[string][]*Token),
		inflight: make(map[string]error),
	}
}

// Seed registers a batch of trusted tokens from configuration.
func (r *Registry) Seed(tokens []*Token) {
	for _, t := range tokens {
		r.Register(t)
	}
}

// Register adds a token. Registering the same identity twice is a no-op;
// tokens are immutable after creation.
func (r *Registry) Register(t *Token) {
	if t == nil {
		panic("token: cannot register nil token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	chain, ok := r.byChain[t.chainID]
	if !ok {
		chain = make(map[string]*Token)
		r.byChain[t.chainID] = chain
	}
	if _, exists := chain[t.address]; exists {
		return
	}

	chain[t.address] = t
	r.bySymbol[strings.ToUpper(t.symbol)] = append(r.bySymbol[strings.ToUpper(t.symbol)], t)
}

// GetByAddress retrieves a token by chain and address.
func (r *Registry) GetByAddress(chainID uint64, address common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byChain[chainID][strings.ToLower(address.Hex())]
	return t, ok
}

// GetBySymbol returns the first token matching a symbol on the chain.
// Symbol lookup is advisory only.
func (r *Registry) GetBySymbol(chainID uint64, symbol string) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.bySymbol[strings.ToUpper(symbol)] {
		if t.chainID == chainID {
			return t, true
		}
	}
	return nil, false
}

// EnsureRegistered returns the token for (chainID, address), introspecting
// the contract on first sight. Exactly one metadata read is attempted per
// unknown address; failures are memoised so a broken contract is not
// re-read on every event.
func (r *Registry) EnsureRegistered(ctx context.Context, chainID uint64, address common.Address, intro Introspector) (*Token, error) {
	if t, ok := r.GetByAddress(chainID, address); ok {
		return t, nil
	}

	key := tokenKey(chainID, address)

	r.mu.Lock()
	if prev, failed := r.inflight[key]; failed {
		r.mu.Unlock()
		return nil, prev
	}
	r.mu.Unlock()

	meta, err := intro.TokenMetadata(ctx, chainID, address)
	if err != nil {
		wrapped := apperror.New(apperror.CodeIntrospectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(key))

		r.mu.Lock()
		r.inflight[key] = wrapped
		r.mu.Unlock()
		return nil, wrapped
	}

	t := New(chainID, address, meta.Symbol, meta.Name, meta.Decimals, false)
	r.Register(t)
	r.log.Warn(ctx, "registered untrusted token from introspection",
		"chain_id", chainID,
		"address", t.Address(),
		"symbol", t.Symbol())

	// Another caller may have registered concurrently; return the stored one.
	stored, _ := r.GetByAddress(chainID, address)
	return stored, nil
}

// All returns every registered token.
func (r *Registry) All() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Token
	for _, chain := range r.byChain {
		for _, t := range chain {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, chain := range r.byChain {
		n += len(chain)
	}
	return n
}

func tokenKey(chainID uint64, address common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(address.Hex()))
}
