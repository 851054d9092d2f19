package app

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/watcher/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// debounceInterval batches bursts of events into one outbound delta.
const debounceInterval = 50 * time.Millisecond

// ChainFeed is the infra port delivering raw chain data.
type ChainFeed interface {
	// Blocks streams new chain heads.
	Blocks() <-chan domain.Block
	// Logs streams raw logs matching the subscribed filter.
	Logs() <-chan types.Log
	// LatestBlock fetches the provider's current head.
	LatestBlock(ctx context.Context) (domain.Block, error)
	// Close tears the subscriptions down.
	Close() error
}

// LogParser decodes a raw log into a typed pool event.
type LogParser func(chainID uint64, lg types.Log, receivedAt time.Time) (dexdomain.PoolEvent, error)

// Batch is one debounced outbound delta.
type Batch struct {
	Block        domain.Block
	Events       []dexdomain.PoolEvent
	UpdatedPools []dexdomain.VenueState
}

// Emitter receives the pipeline's outbound notifications. Implementations
// forward onto the message bus.
type Emitter interface {
	EmitAppEvent(name domain.AppEventName, payload any)
	EmitBatch(batch Batch)
}

// Pipeline is the per-chain event pipeline: it orders blocks, detects
// reorgs, decodes and applies logs, and emits debounced batches.
//
//	init -> listening -> (out-of-order block) -> recovering -> listening
//	any  -> terminated on stop
type Pipeline struct {
	chainID uint64
	feed    ChainFeed
	parser  LogParser
	manager *PoolManager
	emitter Emitter
	log     logger.LoggerInterface

	// knownAddress filters logs to the monitored set; logs it rejects are
	// logged and dropped. A nil filter accepts every log.
	knownAddress func(lg types.Log) bool

	mu           sync.RWMutex
	state        domain.PipelineState
	currentBlock domain.Block
	buffer       []dexdomain.PoolEvent
	lastBlockAt  time.Time
	paused       bool

	debounce *time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// PipelineConfig wires a pipeline's collaborators.
type PipelineConfig struct {
	ChainID      uint64
	Feed         ChainFeed
	Parser       LogParser
	Manager      *PoolManager
	Emitter      Emitter
	KnownAddress func(lg types.Log) bool
}

// NewPipeline creates a pipeline in the init state.
func NewPipeline(cfg PipelineConfig, log logger.LoggerInterface) *Pipeline {
	return &Pipeline{
		chainID:      cfg.ChainID,
		feed:         cfg.Feed,
		parser:       cfg.Parser,
		manager:      cfg.Manager,
		emitter:      cfg.Emitter,
		log:          log,
		knownAddress: cfg.KnownAddress,
		state:        domain.PipelineInit,
		done:         make(chan struct{}),
	}
}

// State returns the pipeline's lifecycle state.
func (p *Pipeline) State() domain.PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Health grades block-feed liveness from the last block arrival.
func (p *Pipeline) Health() domain.ConnectionHealth {
	p.mu.RLock()
	last := p.lastBlockAt
	p.mu.RUnlock()

	if last.IsZero() {
		return domain.HealthOK
	}
	since := time.Since(last)
	switch {
	case since > domain.DeadAfter:
		return domain.HealthDead
	case since > domain.DegradedAfter:
		return domain.HealthDegraded
	}
	return domain.HealthOK
}

// Run processes feed messages until the context ends or Stop is called.
// It owns the watcher's single-threaded discipline: every handler runs to
// completion before the next message.
func (p *Pipeline) Run(ctx context.Context) error {
	latest, err := p.feed.LatestBlock(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.currentBlock = latest
	p.lastBlockAt = time.Now()
	p.state = domain.PipelineListening
	p.mu.Unlock()

	p.emitter.EmitAppEvent(domain.AppWorkerInitialized, p.chainID)

	// The debounce timer is armed on demand; start drained.
	p.debounce = time.NewTimer(debounceInterval)
	if !p.debounce.Stop() {
		<-p.debounce.C
	}
	defer p.debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			p.terminate()
			return ctx.Err()

		case <-p.done:
			p.terminate()
			return nil

		case block, ok := <-p.feed.Blocks():
			if !ok {
				p.terminate()
				return nil
			}
			p.handleBlock(ctx, block)

		case lg, ok := <-p.feed.Logs():
			if !ok {
				p.terminate()
				return nil
			}
			p.handleLog(ctx, lg)

		case <-p.debounce.C:
			p.flushBuffer()
		}
	}
}

// Stop requests termination.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// Pause suspends log application; blocks still advance the head.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume lifts a pause.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// CurrentBlock returns the last in-order head.
func (p *Pipeline) CurrentBlock() domain.Block {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentBlock
}

func (p *Pipeline) terminate() {
	p.mu.Lock()
	p.state = domain.PipelineTerminated
	p.mu.Unlock()
	_ = p.feed.Close()
}

// handleBlock advances the head or, when the provider goes backwards or a
// previous recovery did not complete, runs reorg recovery: purge the
// buffer, reset to the provider head, refresh every pool, resume.
func (p *Pipeline) handleBlock(ctx context.Context, block domain.Block) {
	p.mu.Lock()
	current := p.currentBlock
	recovering := p.state == domain.PipelineRecovering
	p.lastBlockAt = time.Now()
	p.mu.Unlock()

	if recovering || (current.Number != 0 && block.Number <= current.Number) {
		p.recover(ctx, block)
		return
	}

	p.mu.Lock()
	p.currentBlock = block
	p.mu.Unlock()

	p.emitter.EmitAppEvent(domain.AppNewBlock, block)
}

func (p *Pipeline) recover(ctx context.Context, block domain.Block) {
	p.log.Warn(ctx, "reorg detected",
		"chain_id", p.chainID,
		"incoming_block", block.Number,
		"current_block", p.currentBlock.Number)

	p.mu.Lock()
	p.state = domain.PipelineRecovering
	p.buffer = nil
	p.mu.Unlock()

	p.emitter.EmitAppEvent(domain.AppReorgDetected, block.Number)

	latest, err := p.feed.LatestBlock(ctx)
	if err != nil {
		// Recovery retries on the next block; stay in recovering.
		p.log.Error(ctx, "failed to fetch head during reorg recovery", "error", err)
		return
	}

	p.manager.UpdateAll(ctx)

	p.mu.Lock()
	p.currentBlock = latest
	p.state = domain.PipelineListening
	p.mu.Unlock()

	p.emitter.EmitAppEvent(domain.AppPoolStatesUpdated, latest.Number)
}

// handleLog decodes a raw log, applies it immediately, and buffers it for
// the next debounced batch.
func (p *Pipeline) handleLog(ctx context.Context, lg types.Log) {
	p.mu.RLock()
	paused := p.paused
	p.mu.RUnlock()
	if paused {
		return
	}

	if p.knownAddress != nil && !p.knownAddress(lg) {
		p.log.Debug(ctx, "log from unmonitored address dropped",
			"address", lg.Address.Hex(), "block", lg.BlockNumber)
		return
	}

	ev, err := p.parser(p.chainID, lg, time.Now())
	if err != nil {
		p.log.Warn(ctx, "log parse failed",
			"address", lg.Address.Hex(), "error", err)
		return
	}

	if _, err := p.manager.ApplyEvent(ctx, ev); err != nil {
		// Outdated drops are routine; anything else is per-event reported
		// and the pipeline moves on.
		p.log.Debug(ctx, "event not applied",
			"pool", ev.PoolID(), "kind", string(ev.Kind()), "error", err)
		return
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, ev)
	p.mu.Unlock()

	// Re-arm the debounce on every buffered event.
	if !p.debounce.Stop() {
		select {
		case <-p.debounce.C:
		default:
		}
	}
	p.debounce.Reset(debounceInterval)
}

// flushBuffer emits the batch accumulated since the last flush.
func (p *Pipeline) flushBuffer() {
	p.mu.Lock()
	events := p.buffer
	p.buffer = nil
	block := p.currentBlock
	p.mu.Unlock()

	if len(events) == 0 {
		return
	}

	batch := Batch{
		Block:        block,
		Events:       events,
		UpdatedPools: p.manager.DrainDirty(),
	}
	p.emitter.EmitBatch(batch)
}
