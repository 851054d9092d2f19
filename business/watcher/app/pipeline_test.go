package app

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	dexapp "github.com/fd1az/market-data-engine/business/dex/app"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/watcher/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
)

type fakeFeed struct {
	blocks chan domain.Block
	logs   chan types.Log
	head   domain.Block
	mu     sync.Mutex
}

func newFakeFeed(head uint64) *fakeFeed {
	return &fakeFeed{
		blocks: make(chan domain.Block, 16),
		logs:   make(chan types.Log, 16),
		head:   domain.Block{Number: head},
	}
}

func (f *fakeFeed) Blocks() <-chan domain.Block { return f.blocks }
func (f *fakeFeed) Logs() <-chan types.Log      { return f.logs }

func (f *fakeFeed) LatestBlock(context.Context) (domain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeFeed) setHead(n uint64) {
	f.mu.Lock()
	f.head = domain.Block{Number: n}
	f.mu.Unlock()
}

func (f *fakeFeed) Close() error { return nil }

type recordingEmitter struct {
	mu      sync.Mutex
	events  []domain.AppEventName
	batches []Batch
}

func (r *recordingEmitter) EmitAppEvent(name domain.AppEventName, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingEmitter) EmitBatch(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recordingEmitter) eventNames() []domain.AppEventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AppEventName(nil), r.events...)
}

func (r *recordingEmitter) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recordingEmitter) waitFor(t *testing.T, name domain.AppEventName) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, e := range r.eventNames() {
			if e == name {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s (saw %v)", name, r.eventNames())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newPipelineUnderTest(t *testing.T, head uint64) (*Pipeline, *fakeFeed, *recordingEmitter, *fakeV2Adapter) {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	fake := &fakeV2Adapter{}
	registry, err := dexapp.NewRegistry(log, fake)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	manager, err := NewPoolManager(1, registry, log)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	feed := newFakeFeed(head)
	emitter := &recordingEmitter{}
	p := NewPipeline(PipelineConfig{
		ChainID: 1,
		Feed:    feed,
		Parser: func(chainID uint64, lg types.Log, receivedAt time.Time) (dexdomain.PoolEvent, error) {
			return &dexdomain.SyncEvent{
				EventBase: dexdomain.EventBase{
					ChainID: chainID,
					Address: lg.Address,
					Meta: dexdomain.EventMetadata{
						BlockNumber:            lg.BlockNumber,
						TransactionIndex:       lg.TxIndex,
						LogIndex:               lg.Index,
						BlockReceivedTimestamp: receivedAt,
					},
				},
				Reserve0: big.NewInt(1000),
				Reserve1: big.NewInt(1000),
			}, nil
		},
		Manager: manager,
		Emitter: emitter,
	}, log)
	return p, feed, emitter, fake
}

func TestPipelineBlockFlow(t *testing.T) {
	p, feed, emitter, _ := newPipelineUnderTest(t, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	emitter.waitFor(t, domain.AppWorkerInitialized)
	if p.State() != domain.PipelineListening {
		t.Errorf("state = %s, want listening", p.State())
	}

	feed.blocks <- domain.Block{Number: 101}
	emitter.waitFor(t, domain.AppNewBlock)

	p.Stop()
}

func TestPipelineReorgRecovery(t *testing.T) {
	p, feed, emitter, fake := newPipelineUnderTest(t, 105)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	emitter.waitFor(t, domain.AppWorkerInitialized)

	// Seed a pool so recovery has something to refresh.
	feed.logs <- types.Log{Address: poolAddr, BlockNumber: 105}
	time.Sleep(100 * time.Millisecond)

	// Block 104 arrives while current is 105: reorg.
	feed.setHead(106)
	feed.blocks <- domain.Block{Number: 104}

	emitter.waitFor(t, domain.AppReorgDetected)
	emitter.waitFor(t, domain.AppPoolStatesUpdated)

	if fake.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", fake.refreshes)
	}

	// Further events at block >= 104 are accepted again.
	feed.blocks <- domain.Block{Number: 107}
	emitter.waitFor(t, domain.AppNewBlock)

	p.Stop()
}

func TestPipelineDebouncedBatch(t *testing.T) {
	p, feed, emitter, _ := newPipelineUnderTest(t, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	emitter.waitFor(t, domain.AppWorkerInitialized)

	// Two logs in quick succession collapse into one batch.
	feed.logs <- types.Log{Address: poolAddr, BlockNumber: 100, Index: 0}
	feed.logs <- types.Log{Address: poolAddr, BlockNumber: 100, Index: 1}

	deadline := time.After(2 * time.Second)
	for emitter.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no batch emitted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	emitter.mu.Lock()
	batch := emitter.batches[0]
	emitter.mu.Unlock()

	if len(batch.Events) != 2 {
		t.Errorf("batch has %d events, want 2", len(batch.Events))
	}
	if len(batch.UpdatedPools) != 1 {
		t.Errorf("batch has %d updated pools, want 1", len(batch.UpdatedPools))
	}

	// Per-pool order within the batch is preserved.
	if batch.Events[0].Metadata().NewerThan(batch.Events[1].Metadata()) {
		t.Error("batch re-ordered a single pool's events")
	}

	p.Stop()
}

func TestPipelineDropsUnmonitoredAddress(t *testing.T) {
	p, feed, emitter, fake := newPipelineUnderTest(t, 100)
	p.knownAddress = func(lg types.Log) bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	emitter.waitFor(t, domain.AppWorkerInitialized)

	feed.logs <- types.Log{Address: poolAddr, BlockNumber: 100}
	time.Sleep(120 * time.Millisecond)

	if fake.introspections != 0 {
		t.Error("unmonitored log must be dropped before introspection")
	}
	if emitter.batchCount() != 0 {
		t.Error("dropped log must not produce a batch")
	}

	p.Stop()
}
