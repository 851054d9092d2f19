package app

import (
	"context"
	"fmt"

	"github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// Registry dispatches pools and events to the adapter owning their
// protocol. One registry exists per watcher.
type Registry struct {
	log      logger.LoggerInterface
	adapters []Adapter
	byState  map[domain.StateKind]Adapter
	byEvent  map[domain.EventKind]Adapter
}

// NewRegistry builds the dispatch tables for the given adapters.
func NewRegistry(log logger.LoggerInterface, adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		log:      log,
		adapters: adapters,
		byState:  make(map[domain.StateKind]Adapter),
		byEvent:  make(map[domain.EventKind]Adapter),
	}

	for _, a := range adapters {
		var stateKinds []domain.StateKind
		var eventKinds []domain.EventKind

		// The tag sets are closed; dispatch is exhaustive per protocol.
		switch a.Protocol() {
		case ProtocolV2:
			stateKinds = []domain.StateKind{domain.StateDexV2}
			eventKinds = []domain.EventKind{domain.EventV2Sync}
		case ProtocolV3:
			stateKinds = []domain.StateKind{domain.StateDexV3}
			eventKinds = []domain.EventKind{domain.EventV3Swap, domain.EventV3Mint, domain.EventV3Burn}
		case ProtocolV4:
			stateKinds = []domain.StateKind{domain.StateDexV4}
			eventKinds = []domain.EventKind{domain.EventV4Swap, domain.EventV4ModifyLiquidity}
		default:
			return nil, fmt.Errorf("dex registry: unknown protocol %q", a.Protocol())
		}

		for _, k := range stateKinds {
			if _, dup := r.byState[k]; dup {
				return nil, fmt.Errorf("dex registry: duplicate adapter for state kind %q", k)
			}
			r.byState[k] = a
		}
		for _, k := range eventKinds {
			if _, dup := r.byEvent[k]; dup {
				return nil, fmt.Errorf("dex registry: duplicate adapter for event kind %q", k)
			}
			r.byEvent[k] = a
		}
	}
	return r, nil
}

// AdapterForState returns the adapter owning a state's protocol.
func (r *Registry) AdapterForState(s domain.VenueState) (Adapter, error) {
	a, ok := r.byState[s.Kind()]
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("no adapter for state kind %q", s.Kind())))
	}
	return a, nil
}

// AdapterForEvent returns the adapter owning an event's protocol.
func (r *Registry) AdapterForEvent(ev domain.PoolEvent) (Adapter, error) {
	a, ok := r.byEvent[ev.Kind()]
	if !ok {
		return nil, apperror.New(apperror.CodeEventKindMismatch,
			apperror.WithContext(fmt.Sprintf("no adapter for event kind %q", ev.Kind())))
	}
	return a, nil
}

// Adapters returns all registered adapters.
func (r *Registry) Adapters() []Adapter { return r.adapters }

// DiscoverAll asks every adapter for pools on each configured pair.
// Individual discovery failures are logged and skipped.
func (r *Registry) DiscoverAll(ctx context.Context, pairs []domain.TokenPairOnChain) []domain.VenueState {
	var out []domain.VenueState
	for _, pair := range pairs {
		for _, a := range r.adapters {
			pools, err := a.Discover(ctx, pair)
			if err != nil {
				r.log.Warn(ctx, "pool discovery failed",
					"venue", a.Venue().String(),
					"pair", string(pair.PairID()),
					"error", err)
				continue
			}
			out = append(out, pools...)
		}
	}
	return out
}
