// Package app contains the aggregator's application services: the
// multi-index venue store and the USD price oracle.
package app

import (
	"context"
	"fmt"
	"sync"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/aggregator/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/token"
)

// idSet is a set of venue-state ids.
type idSet map[string]struct{}

func (s idSet) add(id string)      { s[id] = struct{}{} }
func (s idSet) remove(id string)   { delete(s, id) }
func (s idSet) has(id string) bool { _, ok := s[id]; return ok }

func (s idSet) ids() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// listenerEntry keeps registration order stable.
type listenerEntry struct {
	id uint64
	fn domain.Listener
}

// Store is the aggregator's multi-indexed map of venue states. Every
// secondary index is an exact inverse of the primary map; indices update
// before listeners fire, and listeners run synchronously in registration
// order on the writer's thread.
type Store struct {
	log logger.LoggerInterface

	mu        sync.RWMutex
	primary   map[string]dexdomain.VenueState
	byChain   map[uint64]idSet
	byToken   map[string]idSet // "chainId:address"
	byVenue   map[dexdomain.VenueName]idSet
	byAddrs   map[string]idSet // sorted address pair "addr0-addr1"
	byPairID  map[dexdomain.PairID]idSet

	listeners  []listenerEntry
	listenerID uint64
}

// NewStore creates an empty store.
func NewStore(log logger.LoggerInterface) *Store {
	return &Store{
		log:      log,
		primary:  make(map[string]dexdomain.VenueState),
		byChain:  make(map[uint64]idSet),
		byToken:  make(map[string]idSet),
		byVenue:  make(map[dexdomain.VenueName]idSet),
		byAddrs:  make(map[string]idSet),
		byPairID: make(map[dexdomain.PairID]idSet),
	}
}

// Set inserts or replaces a state and notifies listeners with add or
// update. Index maintenance completes before any listener runs.
func (s *Store) Set(state dexdomain.VenueState) {
	id := state.ID()

	s.mu.Lock()
	_, existed := s.primary[id]
	if !existed {
		s.indexInsert(id, state)
	}
	s.primary[id] = state
	listeners := s.listenerSnapshot()
	s.mu.Unlock()

	changeType := domain.ChangeAdd
	if existed {
		changeType = domain.ChangeUpdate
	}
	s.notify(listeners, domain.Change{Type: changeType, State: state})
}

// SetBatch applies Set to each state in order.
func (s *Store) SetBatch(states []dexdomain.VenueState) {
	for _, state := range states {
		s.Set(state)
	}
}

// Remove deletes a state from the primary map and every index, then
// notifies with remove. Unknown ids are a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	state, ok := s.primary[id]
	if ok {
		delete(s.primary, id)
		s.indexRemove(id, state)
	}
	listeners := s.listenerSnapshot()
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.notify(listeners, domain.Change{Type: domain.ChangeRemove, State: state})
	return true
}

// SetDisabled flips the disabled flag without notifying.
func (s *Store) SetDisabled(id string, disabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.primary[id]
	if !ok {
		return false
	}
	state.Header().Disabled = disabled
	return true
}

// Subscribe registers a listener; the returned function unsubscribes it.
func (s *Store) Subscribe(listener domain.Listener) func() {
	s.mu.Lock()
	s.listenerID++
	id := s.listenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: listener})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Get returns the state with the given id.
func (s *Store) Get(id string) (dexdomain.VenueState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.primary[id]
	return state, ok
}

// ByChain returns all states on a chain.
func (s *Store) ByChain(chainID uint64) []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byChain[chainID])
}

// ByToken returns all states involving a token.
func (s *Store) ByToken(t *token.Token) []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byToken[t.Key()])
}

// ByVenue returns all states on a venue.
func (s *Store) ByVenue(name dexdomain.VenueName) []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byVenue[name])
}

// ByPair returns all states whose on-chain token pair matches.
func (s *Store) ByPair(a, b *token.Token) []dexdomain.VenueState {
	pair, err := dexdomain.NewTokenPairOnChain(a, b)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byAddrs[pair.AddressKey()])
}

// BySymbolPair returns all states grouped under the sorted symbol pair.
func (s *Store) BySymbolPair(symbolA, symbolB string) []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPairID[dexdomain.NewPairID(symbolA, symbolB)])
}

// GetActive scans for enabled states.
func (s *Store) GetActive() []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dexdomain.VenueState, 0, len(s.primary))
	for _, state := range s.primary {
		if !state.Header().Disabled {
			out = append(out, state)
		}
	}
	return out
}

// All returns every stored state.
func (s *Store) All() []dexdomain.VenueState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dexdomain.VenueState, 0, len(s.primary))
	for _, state := range s.primary {
		out = append(out, state)
	}
	return out
}

// Len returns the number of stored states.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.primary)
}

// Stats aggregates counts by scanning the primary map.
type Stats struct {
	Total    int
	ByKind   map[dexdomain.StateKind]int
	ByChain  map[uint64]int
	ByVenue  map[dexdomain.VenueName]int
	Disabled int
}

// ComputeStats scans the primary map on demand.
func (s *Store) ComputeStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		ByKind:  make(map[dexdomain.StateKind]int),
		ByChain: make(map[uint64]int),
		ByVenue: make(map[dexdomain.VenueName]int),
	}
	for _, state := range s.primary {
		stats.Total++
		stats.ByKind[state.Kind()]++
		h := state.Header()
		stats.ByChain[h.Venue.ChainID]++
		stats.ByVenue[h.Venue.Name]++
		if h.Disabled {
			stats.Disabled++
		}
	}
	return stats
}

// indexRemove drops id from every secondary index. Callers hold the lock.
func (s *Store) indexRemove(id string, state dexdomain.VenueState) {
	h := state.Header()

	if set, ok := s.byChain[h.Venue.ChainID]; ok {
		set.remove(id)
		if len(set) == 0 {
			delete(s.byChain, h.Venue.ChainID)
		}
	}
	if set, ok := s.byVenue[h.Venue.Name]; ok {
		set.remove(id)
		if len(set) == 0 {
			delete(s.byVenue, h.Venue.Name)
		}
	}
	if set, ok := s.byPairID[h.Pair]; ok {
		set.remove(id)
		if len(set) == 0 {
			delete(s.byPairID, h.Pair)
		}
	}
	if pair, ok := statePair(state); ok {
		for _, t := range []*token.Token{pair.Token0, pair.Token1} {
			if set, ok := s.byToken[t.Key()]; ok {
				set.remove(id)
				if len(set) == 0 {
					delete(s.byToken, t.Key())
				}
			}
		}
		if set, ok := s.byAddrs[pair.AddressKey()]; ok {
			set.remove(id)
			if len(set) == 0 {
				delete(s.byAddrs, pair.AddressKey())
			}
		}
	}
}

// indexInsert adds id to every secondary index. Callers hold the lock.
func (s *Store) indexInsert(id string, state dexdomain.VenueState) {
	h := state.Header()

	chainSet, ok := s.byChain[h.Venue.ChainID]
	if !ok {
		chainSet = make(idSet)
		s.byChain[h.Venue.ChainID] = chainSet
	}
	chainSet.add(id)

	venueSet, ok := s.byVenue[h.Venue.Name]
	if !ok {
		venueSet = make(idSet)
		s.byVenue[h.Venue.Name] = venueSet
	}
	venueSet.add(id)

	pairSet, ok := s.byPairID[h.Pair]
	if !ok {
		pairSet = make(idSet)
		s.byPairID[h.Pair] = pairSet
	}
	pairSet.add(id)

	if pair, ok := statePair(state); ok {
		for _, t := range []*token.Token{pair.Token0, pair.Token1} {
			set, ok := s.byToken[t.Key()]
			if !ok {
				set = make(idSet)
				s.byToken[t.Key()] = set
			}
			set.add(id)
		}
		addrSet, ok := s.byAddrs[pair.AddressKey()]
		if !ok {
			addrSet = make(idSet)
			s.byAddrs[pair.AddressKey()] = addrSet
		}
		addrSet.add(id)
	}
}

// statePair extracts the on-chain token pair from DEX states.
func statePair(state dexdomain.VenueState) (dexdomain.TokenPairOnChain, bool) {
	switch t := state.(type) {
	case *dexdomain.DexV2PoolState:
		return t.TokenPair, true
	case *dexdomain.DexV3PoolState:
		return t.TokenPair, true
	case *dexdomain.DexV4PoolState:
		return t.TokenPair, true
	}
	return dexdomain.TokenPairOnChain{}, false
}

func (s *Store) collect(set idSet) []dexdomain.VenueState {
	out := make([]dexdomain.VenueState, 0, len(set))
	for id := range set {
		if state, ok := s.primary[id]; ok {
			out = append(out, state)
		}
	}
	return out
}

func (s *Store) listenerSnapshot() []listenerEntry {
	return append([]listenerEntry(nil), s.listeners...)
}

// notify runs listeners in registration order on the caller's thread. A
// panicking listener is caught and logged; the write never aborts.
func (s *Store) notify(listeners []listenerEntry, change domain.Change) {
	for _, entry := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error(context.Background(), "store listener panicked",
						"change", string(change.Type),
						"state", change.State.ID(),
						"panic", fmt.Sprint(r))
				}
			}()
			entry.fn(change)
		}()
	}
}
