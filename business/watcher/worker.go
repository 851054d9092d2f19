// Package watcher implements the per-chain watcher unit: chain
// subscription, pool-state ownership, and the bus-facing request surface.
package watcher

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dexapp "github.com/fd1az/market-data-engine/business/dex/app"
	"github.com/fd1az/market-data-engine/business/dex/adapters/uniswapv2"
	"github.com/fd1az/market-data-engine/business/dex/adapters/uniswapv3"
	"github.com/fd1az/market-data-engine/business/dex/adapters/uniswapv4"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/dex/infra/ethrpc"
	"github.com/fd1az/market-data-engine/business/watcher/app"
	"github.com/fd1az/market-data-engine/business/watcher/domain"
	"github.com/fd1az/market-data-engine/business/watcher/infra/ethereum"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/ratelimit"
	"github.com/fd1az/market-data-engine/internal/staticcache"
	"github.com/fd1az/market-data-engine/internal/token"
)

// healthCheckInterval paces block-liveness checks.
const healthCheckInterval = 10 * time.Second

// Worker is one isolated watcher unit for a platform. It owns its pool
// states exclusively; everything leaves as a bus message.
type Worker struct {
	platform string
	cfg      config.PlatformConfig
	log      logger.LoggerInterface

	subscriber *ethereum.Subscriber
	rpc        *ethrpc.Client
	tokens     *token.Registry
	registry   *dexapp.Registry
	manager    *app.PoolManager
	pipeline   *app.Pipeline
	cache      *staticcache.Cache
	port       *bus.WorkerPort

	watchedPairs []dexdomain.TokenPairOnChain

	// exit replaces os.Exit in tests.
	exit func(code int)
}

// NewWorker assembles a watcher unit for a platform.
func NewWorker(platform string, cfg config.PlatformConfig, cacheDir string, b *bus.Bus, log logger.LoggerInterface) (*Worker, error) {
	w := &Worker{
		platform: platform,
		cfg:      cfg,
		log:      log,
		tokens:   token.NewRegistry(log),
		exit:     os.Exit,
	}

	cache, err := staticcache.Open(cacheDir, cfg.ChainID, log)
	if err != nil {
		return nil, err
	}
	w.cache = cache

	subCfg := ethereum.DefaultSubscriberConfig(cfg.ChainID, cfg.WSURL)
	w.subscriber, err = ethereum.NewSubscriber(subCfg, log)
	if err != nil {
		return nil, err
	}

	w.port = b.RegisterWorker(platform, 64)
	return w, nil
}

// ID returns the worker's bus id.
func (w *Worker) ID() string { return w.platform }

// Manager exposes the pool manager for same-process queries in tests.
func (w *Worker) Manager() *app.PoolManager { return w.manager }

// Run connects the chain, builds the adapter stack, discovers configured
// pools, and serves the pipeline and the bus until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.initialize(ctx); err != nil {
		return err
	}

	// Ship the discovery results before any event flows.
	if pools := w.manager.DrainDirty(); len(pools) > 0 {
		w.EmitBatch(app.Batch{UpdatedPools: pools})
	}

	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- w.pipeline.Run(ctx) }()

	healthTicker := time.NewTicker(healthCheckInterval)
	defer healthTicker.Stop()

	flushTicker := time.NewTicker(time.Minute)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()

		case err := <-pipelineDone:
			w.shutdown()
			return err

		case req := <-w.port.Requests():
			w.handleRequest(ctx, req)

		case <-healthTicker.C:
			w.checkHealth(ctx)

		case <-flushTicker.C:
			if err := w.cache.Flush(); err != nil {
				w.log.Warn(ctx, "static cache flush failed", "error", err)
			}
		}
	}
}

// initialize connects, wires the adapters, and runs configured discovery.
func (w *Worker) initialize(ctx context.Context) error {
	if err := w.subscriber.Connect(ctx); err != nil {
		return err
	}

	client := w.subscriber.Client()
	rpc, err := ethrpc.NewClient(ethrpc.Config{
		ChainID:       w.cfg.ChainID,
		Eth:           client,
		Cache:         w.cache,
		Bucket:        ratelimit.NewBucket(ratelimit.DefaultBucketConfig()),
		MulticallAddr: w.cfg.MulticallHex(),
	}, w.log)
	if err != nil {
		return err
	}
	w.rpc = rpc

	w.seedTokens()

	adapters, err := w.buildAdapters()
	if err != nil {
		return err
	}
	w.registry, err = dexapp.NewRegistry(w.log, adapters...)
	if err != nil {
		return err
	}

	w.manager, err = app.NewPoolManager(w.cfg.ChainID, w.registry, w.log)
	if err != nil {
		return err
	}

	w.watchedPairs = w.buildWatchedPairs()
	w.manager.DiscoverAndRegister(ctx, w.watchedPairs)

	w.pipeline = app.NewPipeline(app.PipelineConfig{
		ChainID: w.cfg.ChainID,
		Feed:    w.subscriber,
		Parser:  ethereum.ParseLog,
		Manager: w.manager,
		Emitter: w,
	}, w.log)

	return nil
}

// seedTokens registers the configured trusted tokens.
func (w *Worker) seedTokens() {
	var seeds []*token.Token
	for _, s := range w.cfg.Tokens {
		seeds = append(seeds, token.New(w.cfg.ChainID,
			common.HexToAddress(s.Address), s.Symbol, s.Name, s.Decimals, true))
	}
	w.tokens.Seed(seeds)
}

// buildAdapters instantiates one adapter per configured DEX entry.
func (w *Worker) buildAdapters() ([]dexapp.Adapter, error) {
	var adapters []dexapp.Adapter
	for _, dex := range w.cfg.Dexes {
		cc := dexapp.ChainContext{
			ChainID:      w.cfg.ChainID,
			RPC:          w.rpc,
			Tokens:       w.tokens,
			Log:          w.log,
			Factory:      dex.FactoryHex(),
			Router:       dex.RouterHex(),
			Quoter:       dex.QuoterHex(),
			PoolManager:  dex.PoolManagerHex(),
			StateView:    dex.StateViewHex(),
			InitCodeHash: dex.InitCodeHashHex(),
		}

		name := dexdomain.VenueName(dex.Name)
		switch dex.Kind {
		case config.DexKindV2:
			adapters = append(adapters, uniswapv2.New(cc, name))
		case config.DexKindV3:
			adapters = append(adapters, uniswapv3.New(cc, name))
		case config.DexKindV4:
			adapters = append(adapters, uniswapv4.New(cc, name))
		default:
			return nil, fmt.Errorf("unknown dex kind %q", dex.Kind)
		}
	}
	return adapters, nil
}

// buildWatchedPairs crosses the borrow tokens with every seeded token.
func (w *Worker) buildWatchedPairs() []dexdomain.TokenPairOnChain {
	var pairs []dexdomain.TokenPairOnChain
	seen := make(map[string]struct{})

	for _, borrowSym := range w.cfg.BorrowTokens {
		borrow, ok := w.tokens.GetBySymbol(w.cfg.ChainID, borrowSym)
		if !ok {
			continue
		}
		for _, t := range w.tokens.All() {
			if t.Equals(borrow) {
				continue
			}
			pair, err := dexdomain.NewTokenPairOnChain(borrow, t)
			if err != nil {
				continue
			}
			if _, dup := seen[pair.AddressKey()]; dup {
				continue
			}
			seen[pair.AddressKey()] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// EmitAppEvent implements app.Emitter: application events go out on the bus.
func (w *Worker) EmitAppEvent(name domain.AppEventName, payload any) {
	switch name {
	case domain.AppNewBlock:
		block, ok := payload.(domain.Block)
		if !ok {
			return
		}
		data := map[string]any{
			"number":     block.Number,
			"chainId":    w.cfg.ChainID,
			"receivedAt": block.ReceivedAt.UnixMilli(),
		}
		if block.BaseFee != nil {
			data["baseFeePerGas"] = block.BaseFee
		}
		w.port.Publish(string(name), data)

	case domain.AppReorgDetected:
		w.port.Publish(string(name), map[string]any{
			"chainId":     w.cfg.ChainID,
			"blockNumber": payload,
		})

	default:
		w.port.Publish(string(name), payload)
	}
}

// EmitBatch implements app.Emitter: debounced deltas go out on the bus.
func (w *Worker) EmitBatch(batch app.Batch) {
	w.port.Publish(string(domain.AppPoolUpdateBatch), batch)
}

// handleRequest serves the bus request surface.
func (w *Worker) handleRequest(ctx context.Context, req bus.Request) {
	respond := func(data any, err error) {
		w.port.Respond(bus.Response{CorrelationID: req.CorrelationID, Data: data, Error: err})
	}

	switch req.Name {
	case "init":
		// Workers initialise at spawn; by the time requests are served the
		// unit is live, so init acknowledges idempotently.
		respond(map[string]any{"chainId": w.cfg.ChainID, "pools": w.manager.Count()}, nil)

	case "stop":
		respond("stopping", nil)
		w.pipeline.Stop()

	case "pause":
		w.pipeline.Pause()
		respond("paused", nil)

	case "resume":
		w.pipeline.Resume()
		respond("resumed", nil)

	case "fetch-pool":
		address, _ := requestField(req.Data, "address")
		pool, ok := w.manager.Get(dexdomain.DexPoolID(w.cfg.ChainID, common.HexToAddress(address)))
		if !ok {
			respond(nil, apperror.New(apperror.CodePoolNotFound,
				apperror.WithContext(address)))
			return
		}
		respond(pool.Clone(), nil)

	case "fetch-all":
		pools := w.manager.All()
		clones := make([]dexdomain.VenueState, len(pools))
		for i, p := range pools {
			clones[i] = p.Clone()
		}
		respond(clones, nil)

	case "add-pool":
		address, _ := requestField(req.Data, "address")
		respond(w.addPool(ctx, common.HexToAddress(address)))

	case "remove-pool":
		address, _ := requestField(req.Data, "address")
		id := dexdomain.DexPoolID(w.cfg.ChainID, common.HexToAddress(address))
		if !w.manager.Remove(ctx, id) {
			respond(nil, apperror.New(apperror.CodePoolNotFound,
				apperror.WithContext(id)))
			return
		}
		respond(id, nil)

	case "update-config":
		// Acknowledged only; the worker does not store the new config.
		respond("ok", nil)

	default:
		respond(nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("unknown request "+req.Name)))
	}
}

// addPool introspects an explicit address as a V2-style pair and tracks it.
func (w *Worker) addPool(ctx context.Context, address common.Address) (any, error) {
	ev := &dexdomain.SyncEvent{
		EventBase: dexdomain.EventBase{ChainID: w.cfg.ChainID, Address: address},
		Reserve0:  new(big.Int),
		Reserve1:  new(big.Int),
	}
	adapter, err := w.registry.AdapterForEvent(ev)
	if err != nil {
		return nil, err
	}

	pool, err := adapter.IntrospectFromEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if err := adapter.Refresh(ctx, pool); err != nil {
		return nil, err
	}

	w.manager.Add(ctx, pool)
	return pool.Clone(), nil
}

// checkHealth enforces the block-liveness policy: degraded past 30s, exit
// past 60s so the host respawns the process.
func (w *Worker) checkHealth(ctx context.Context) {
	switch w.pipeline.Health() {
	case domain.HealthDegraded:
		w.log.Warn(ctx, "connection degraded, no blocks for over 30s",
			"platform", w.platform)
	case domain.HealthDead:
		w.log.Error(ctx, "connection dead, no blocks for over 60s, exiting",
			"platform", w.platform)
		w.exit(1)
	}
}

func (w *Worker) shutdown() {
	if err := w.cache.Flush(); err != nil {
		w.log.Warn(context.Background(), "final cache flush failed", "error", err)
	}
	_ = w.subscriber.Close()
}

// requestField pulls a string field out of a generic request payload.
func requestField(data any, key string) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}
