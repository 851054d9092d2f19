// Package main is the entry point for the multi-venue market-data engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/market-data-engine/business/aggregator"
	aggregatorDI "github.com/fd1az/market-data-engine/business/aggregator/di"
	aggdomain "github.com/fd1az/market-data-engine/business/aggregator/domain"
	"github.com/fd1az/market-data-engine/business/cex"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/business/watcher"
	watcherDI "github.com/fd1az/market-data-engine/business/watcher/di"
	"github.com/fd1az/market-data-engine/internal/apm"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/health"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/metrics"
	"github.com/fd1az/market-data-engine/internal/monolith"
	"github.com/fd1az/market-data-engine/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Run with the terminal dashboard")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("market-data-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// The dashboard owns the terminal; discard log output.
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting market-data engine",
			"version", version,
			"environment", cfg.App.Environment,
			"platforms", len(cfg.Enabled),
		)
	}

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthPort := cfg.Telemetry.HealthPort
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Module order matters: the aggregator must listen before the first
	// watcher publishes.
	modules := []monolith.Module{
		&aggregator.Module{},
		&watcher.Module{},
		&cex.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	// Health surface: reports how many watchers are running; block
	// freshness is not checked here.
	supervisor := watcherDI.GetSupervisor(mono.Services())
	healthServer.RegisterCheck("watchers", func(context.Context) (bool, string) {
		workers := supervisor.Workers()
		return len(workers) > 0, fmt.Sprintf("%d watchers running", len(workers))
	})

	if tuiMode {
		return runTUI(ctx, mono, modules)
	}
	return runCLI(ctx, mono, modules, log)
}

func runCLI(ctx context.Context, mono *monolith.App, modules []monolith.Module, log *logger.Logger) error {
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	log.Info(ctx, "all modules started")

	<-ctx.Done()

	log.Info(ctx, "shutting down")
	supervisor := watcherDI.GetSupervisor(mono.Services())
	supervisor.StopAll(context.Background())
	aggregatorDI.GetService(mono.Services()).Stop()
	return nil
}

func runTUI(ctx context.Context, mono *monolith.App, modules []monolith.Module) error {
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	// Feed store changes into the dashboard.
	store := aggregatorDI.GetStore(mono.Services())
	oracle := aggregatorDI.GetOracle(mono.Services())
	unsubscribe := store.Subscribe(func(change aggdomain.Change) {
		if change.Type == aggdomain.ChangeRemove {
			return
		}
		h := change.State.Header()
		spot := 0.0
		switch state := change.State.(type) {
		case *dexdomain.DexV2PoolState:
			spot = state.SpotPrice0to1
		case *dexdomain.DexV3PoolState:
			spot = state.SpotPrice0to1
		case *dexdomain.DexV4PoolState:
			spot = state.SpotPrice0to1
		case *dexdomain.CexMarketState:
			spot, _ = state.BestBid.Float64()
		}
		ui.Send(ui.PoolRowMsg{
			ID:           change.State.ID(),
			Venue:        h.Venue.String(),
			Pair:         string(h.Pair),
			Kind:         string(change.State.Kind()),
			SpotPrice:    spot,
			LiquidityUSD: h.TotalLiquidityUSD.StringFixed(0),
		})
		ui.Send(ui.StatsMsg{Pools: store.Len(), Prices: oracle.Known()})
	})
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		if err := mono.StartModules(ctx, modules...); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		<-ctx.Done()

		supervisor := watcherDI.GetSupervisor(mono.Services())
		supervisor.StopAll(context.Background())
		aggregatorDI.GetService(mono.Services()).Stop()
		errCh <- nil
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
