// Package app contains the watcher's application services: the pool-state
// manager and the event pipeline.
package app

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	dexapp "github.com/fd1az/market-data-engine/business/dex/app"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

const meterName = "watcher"

// poolManagerMetrics holds OTEL metric instruments.
type poolManagerMetrics struct {
	eventsApplied  metric.Int64Counter
	eventsDropped  metric.Int64Counter
	poolsTracked   metric.Int64UpDownCounter
	introspections metric.Int64Counter
}

// PoolManager owns the authoritative pool set for one chain. Events are
// applied strictly in lexicographic metadata order per pool; unknown pools
// are introspected from their first event.
type PoolManager struct {
	chainID  uint64
	registry *dexapp.Registry
	log      logger.LoggerInterface

	mu         sync.RWMutex
	pools      map[string]dexdomain.VenueState
	latestMeta map[string]dexdomain.EventMetadata
	dirty      map[string]struct{}

	metrics *poolManagerMetrics
}

// NewPoolManager creates a pool manager for a chain.
func NewPoolManager(chainID uint64, registry *dexapp.Registry, log logger.LoggerInterface) (*PoolManager, error) {
	m := &PoolManager{
		chainID:    chainID,
		registry:   registry,
		log:        log,
		pools:      make(map[string]dexdomain.VenueState),
		latestMeta: make(map[string]dexdomain.EventMetadata),
		dirty:      make(map[string]struct{}),
	}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PoolManager) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &poolManagerMetrics{}

	m.metrics.eventsApplied, err = meter.Int64Counter(
		"watcher_events_applied_total",
		metric.WithDescription("Pool events applied to state"),
	)
	if err != nil {
		return err
	}

	m.metrics.eventsDropped, err = meter.Int64Counter(
		"watcher_events_dropped_total",
		metric.WithDescription("Pool events dropped (outdated, unknown, mismatched)"),
	)
	if err != nil {
		return err
	}

	m.metrics.poolsTracked, err = meter.Int64UpDownCounter(
		"watcher_pools_tracked",
		metric.WithDescription("Pools currently tracked"),
	)
	if err != nil {
		return err
	}

	m.metrics.introspections, err = meter.Int64Counter(
		"watcher_pool_introspections_total",
		metric.WithDescription("Unknown pools introspected from events"),
	)
	return err
}

// ApplyResult describes what an event application did.
type ApplyResult struct {
	Applied bool
	Added   bool // pool was introspected and inserted
	PoolID  string
}

// ApplyEvent routes one decoded event through its adapter. Outdated events
// are dropped silently; adapter failures are reported per event and never
// abort the caller's loop.
func (m *PoolManager) ApplyEvent(ctx context.Context, ev dexdomain.PoolEvent) (ApplyResult, error) {
	res := ApplyResult{PoolID: ev.PoolID()}

	adapter, err := m.registry.AdapterForEvent(ev)
	if err != nil {
		m.metrics.eventsDropped.Add(ctx, 1)
		return res, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pool, known := m.pools[res.PoolID]
	if !known {
		// First sight: introspect and insert, treating this as the first
		// event. Introspection does its own RPC; drop the lock would let
		// events interleave, so the pipeline's single-threaded discipline
		// matters here.
		state, err := adapter.IntrospectFromEvent(ctx, ev)
		if err != nil {
			m.metrics.eventsDropped.Add(ctx, 1)
			return res, err
		}
		m.pools[res.PoolID] = state
		m.latestMeta[res.PoolID] = ev.Metadata()
		m.dirty[res.PoolID] = struct{}{}
		m.metrics.poolsTracked.Add(ctx, 1)
		m.metrics.introspections.Add(ctx, 1)
		m.metrics.eventsApplied.Add(ctx, 1)

		res.Applied = true
		res.Added = true
		return res, nil
	}

	if last, seen := m.latestMeta[res.PoolID]; seen && !ev.Metadata().NewerThan(last) {
		// Expected under reorg; drop silently.
		m.metrics.eventsDropped.Add(ctx, 1)
		return res, apperror.New(apperror.CodeOutdatedEvent)
	}

	if err := adapter.ApplyEvent(pool, ev); err != nil {
		m.metrics.eventsDropped.Add(ctx, 1)
		return res, err
	}

	m.latestMeta[res.PoolID] = ev.Metadata()
	m.dirty[res.PoolID] = struct{}{}
	m.metrics.eventsApplied.Add(ctx, 1)
	res.Applied = true
	return res, nil
}

// ArePoolsFresh reports whether the manager's metadata agrees with each
// pool's own latestEventMeta for the given ids.
func (m *PoolManager) ArePoolsFresh(ids []string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range ids {
		pool, ok := m.pools[id]
		if !ok {
			return false
		}
		poolMeta := pool.Header().LatestEventMeta
		if poolMeta == nil {
			continue
		}
		stored, ok := m.latestMeta[id]
		if !ok || stored.Compare(*poolMeta) < 0 {
			return false
		}
	}
	return true
}

// DiscoverAndRegister asks every adapter for pools on the watched pairs
// and inserts them.
func (m *PoolManager) DiscoverAndRegister(ctx context.Context, pairs []dexdomain.TokenPairOnChain) []dexdomain.VenueState {
	discovered := m.registry.DiscoverAll(ctx, pairs)

	m.mu.Lock()
	defer m.mu.Unlock()

	var added []dexdomain.VenueState
	for _, pool := range discovered {
		id := pool.ID()
		if _, exists := m.pools[id]; exists {
			continue
		}
		m.pools[id] = pool
		m.dirty[id] = struct{}{}
		m.metrics.poolsTracked.Add(ctx, 1)
		added = append(added, pool)
	}

	m.log.Info(ctx, "pool discovery complete",
		"chain_id", m.chainID,
		"discovered", len(discovered),
		"added", len(added))
	return added
}

// UpdateAll refreshes every pool over RPC. Per-pool failures are logged
// and do not abort the batch.
func (m *PoolManager) UpdateAll(ctx context.Context) {
	m.mu.RLock()
	snapshot := make([]dexdomain.VenueState, 0, len(m.pools))
	for _, p := range m.pools {
		snapshot = append(snapshot, p)
	}
	m.mu.RUnlock()

	var failed int
	for _, pool := range snapshot {
		adapter, err := m.registry.AdapterForState(pool)
		if err != nil {
			failed++
			continue
		}
		if err := adapter.Refresh(ctx, pool); err != nil {
			failed++
			m.log.Warn(ctx, "pool refresh failed",
				"pool", pool.ID(), "error", err)
			continue
		}
		m.mu.Lock()
		m.dirty[pool.ID()] = struct{}{}
		m.mu.Unlock()
	}

	m.log.Info(ctx, "pool refresh complete",
		"chain_id", m.chainID,
		"pools", len(snapshot),
		"failed", failed)
}

// Get returns the pool with the given id.
func (m *PoolManager) Get(id string) (dexdomain.VenueState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	return p, ok
}

// All returns a snapshot of every tracked pool.
func (m *PoolManager) All() []dexdomain.VenueState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]dexdomain.VenueState, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// Add inserts an externally-constructed pool.
func (m *PoolManager) Add(ctx context.Context, pool dexdomain.VenueState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := pool.ID()
	if _, exists := m.pools[id]; !exists {
		m.metrics.poolsTracked.Add(ctx, 1)
	}
	m.pools[id] = pool
	m.dirty[id] = struct{}{}
}

// Remove drops a pool from the manager.
func (m *PoolManager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pools[id]; !exists {
		return false
	}
	delete(m.pools, id)
	delete(m.latestMeta, id)
	delete(m.dirty, id)
	m.metrics.poolsTracked.Add(ctx, -1)
	return true
}

// DrainDirty returns clones of every pool touched since the last drain.
// Clones cross the bus; the originals stay owned by this watcher.
func (m *PoolManager) DrainDirty() []dexdomain.VenueState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.dirty) == 0 {
		return nil
	}
	out := make([]dexdomain.VenueState, 0, len(m.dirty))
	for id := range m.dirty {
		if pool, ok := m.pools[id]; ok {
			out = append(out, pool.Clone())
		}
	}
	m.dirty = make(map[string]struct{})
	return out
}

// Count returns the number of tracked pools.
func (m *PoolManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}
