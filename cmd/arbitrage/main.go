// Package main is the entry point for the CFMM arbitrage engine.
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
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage"
	arbitrageApp "github.com/fd1az/cfmm-arbitrage/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/cfmm-arbitrage/business/arbitrage/di"
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/infra"
	"github.com/fd1az/cfmm-arbitrage/business/blockchain"
	blockchainDI "github.com/fd1az/cfmm-arbitrage/business/blockchain/di"
	"github.com/fd1az/cfmm-arbitrage/business/market"
	marketDI "github.com/fd1az/cfmm-arbitrage/business/market/di"
	"github.com/fd1az/cfmm-arbitrage/business/optimizer"
	"github.com/fd1az/cfmm-arbitrage/internal/apm"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/health"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/metrics"
	"github.com/fd1az/cfmm-arbitrage/internal/monolith"
	"github.com/fd1az/cfmm-arbitrage/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type mode int

const (
	modeTUI mode = iota
	modeCLI
	modeOnce
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	once := flag.Bool("once", false, "Run a single scan, print it and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cfmm-arbitrage %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging
	m := modeTUI
	switch {
	case *once:
		m = modeOnce
	case *cliMode:
		m = modeCLI
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if m != modeTUI {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, m); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, m mode) error {
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
	if m == modeTUI {
		// The dashboard owns the terminal.
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, apm.TraceID)
		log.Info(ctx, "starting CFMM arbitrage engine",
			"version", version,
			"environment", cfg.App.Environment,
		)
	}

	stopTelemetry, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer func() {
		if err := mono.Close(); err != nil {
			log.Warn(context.Background(), "shutdown", "error", err)
		}
	}()

	var dashboard *ui.Dashboard
	if m == modeTUI {
		dashboard = ui.NewDashboard(mono.Tokens(), tea.WithAltScreen())
	}
	modules := buildModules(dashboard)

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if cfg.Telemetry.HealthPort > 0 {
		healthServer := newHealthServer(mono, log)
		if err := healthServer.Start(ctx); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.Telemetry.HealthPort)
		}
		defer healthServer.Stop(context.Background())
	}

	switch m {
	case modeTUI:
		return runTUI(ctx, mono, modules, dashboard)
	case modeOnce:
		if err := mono.StartModules(ctx, modules...); err != nil {
			return fmt.Errorf("failed to start modules: %w", err)
		}
		return runOnce(ctx, mono)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	return runCLI(ctx, arbitrageDI.GetDetector(mono.Services()), log)
}

// buildModules lists the bounded contexts in dependency order: gas and
// blocks, pools, optimizer, detection. A non-nil dashboard becomes a sink.
func buildModules(dashboard *ui.Dashboard) []monolith.Module {
	arbitrageModule := &arbitrage.Module{}
	if dashboard != nil {
		arbitrageModule.Dashboard = infra.NewDashboardSink(dashboard.Send)
	}
	return []monolith.Module{
		&blockchain.Module{},
		&market.Module{},
		&optimizer.Module{},
		arbitrageModule,
	}
}

// setupTelemetry installs the tracer and meter providers when enabled and
// returns their shutdown hook.
func setupTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	traceProvider, err := apm.NewTraceProvider(cfg.Telemetry.ServiceName,
		apm.WithProvider(apm.Provider(cfg.Telemetry.TraceProvider), apm.ExporterConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		}, log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider, "endpoint", cfg.Telemetry.OTLPEndpoint)

	// A private registry keeps the scrape output to this process's meters
	// plus the runtime collectors.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	meterOpts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithRegisterer(reg),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if endpoint := cfg.Telemetry.MetricsEndpoint; endpoint != "" {
		headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
		if err != nil {
			_ = traceProvider.Stop()
			return nil, fmt.Errorf("failed to parse otlp headers: %w", err)
		}
		meterOpts = append(meterOpts, metrics.WithProviderConfig(
			metrics.Collector(endpoint, headers, cfg.Telemetry.OTLPInsecure)))
		log.Info(ctx, "pushing metrics to collector", "endpoint", endpoint)
	}

	meterProvider, err := metrics.NewMetricProvider(ctx, meterOpts...)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	promCtx, stopProm := context.WithCancel(ctx)
	if port := cfg.Telemetry.PrometheusPort; port > 0 {
		go func() {
			err := metrics.ServePrometheusMetrics(promCtx,
				metrics.WithPort(strconv.Itoa(port)),
				metrics.WithGatherer(reg),
			)
			if err != nil {
				log.Error(ctx, "prometheus server stopped", "error", err)
			}
		}()
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}

	return func() {
		stopProm()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "meter provider shutdown", "error", err)
		}
		if err := traceProvider.Stop(); err != nil {
			log.Warn(shutdownCtx, "trace provider shutdown", "error", err)
		}
	}, nil
}

// newHealthServer reports unhealthy when reserves go stale or the gas
// oracle stops answering.
func newHealthServer(mono monolith.Monolith, log logger.LoggerInterface) *health.Server {
	cfg := mono.Config()
	srv := health.NewServer(cfg.Telemetry.HealthPort, version, log)

	srv.RegisterCheck("markets", func(ctx context.Context) (bool, string) {
		snap := marketDI.GetMarketService(mono.Services()).Snapshot()
		if snap == nil {
			return false, "no snapshot yet"
		}
		age := time.Since(snap.TakenAt)
		if limit := 3 * cfg.Markets.RefreshInterval; limit > 0 && age > limit {
			return false, fmt.Sprintf("snapshot is %s old", age.Round(time.Second))
		}
		return true, fmt.Sprintf("%d pools at block %d", snap.Len(), snap.Block)
	})

	srv.RegisterCheck("gas", func(ctx context.Context) (bool, string) {
		price, err := blockchainDI.GetBlockchainService(mono.Services()).GasPrice(ctx)
		if err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("%.2f gwei from %s", price.Gwei(), price.Source)
	})

	// Scans fall back to the interval trigger without heads.
	if cfg.Arbitrage.BlockTriggered {
		srv.RegisterAdvisory("blocks", func(ctx context.Context) (bool, string) {
			state := blockchainDI.GetBlockchainService(mono.Services()).ConnectionState()
			return state.Live(), string(state)
		})
	}

	return srv
}

func runCLI(ctx context.Context, detector *arbitrageApp.Detector, log *logger.Logger) error {
	log.Info(ctx, "all modules started, beginning arbitrage detection")

	if err := detector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start detector: %w", err)
	}

	<-ctx.Done()

	log.Info(ctx, "shutting down")

	if err := detector.Stop(); err != nil {
		log.Error(ctx, "error stopping detector", "error", err)
	}

	return nil
}

// runOnce scans the current block once through every sink.
func runOnce(ctx context.Context, mono monolith.Monolith) error {
	sinks := arbitrageDI.GetSinks(mono.Services())
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sink: %w", err)
		}
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Stop(); err != nil {
				mono.Logger().Warn(ctx, "sink stop", "error", err)
			}
		}
	}()

	block, err := blockchainDI.GetBlockchainService(mono.Services()).LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read head block: %w", err)
	}

	report, err := arbitrageDI.GetDetector(mono.Services()).Scan(ctx, block)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	mono.Logger().Info(ctx, "scan complete",
		"block", report.Block,
		"pairs", report.Stats.Pairs,
		"candidates", report.Candidates,
		"opportunities", len(report.Opportunities),
		"routes", len(report.Routes),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return nil
}

func runTUI(ctx context.Context, mono monolith.Runner, modules []monolith.Module, dashboard *ui.Dashboard) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	// Modules start behind the dashboard so connection progress shows up.
	go func() {
		dashboard.Send(ui.ConnectionStatusMsg{Name: "markets", Detail: "loading"})

		if err := mono.StartModules(ctx, modules...); err != nil {
			dashboard.Send(ui.ConnectionStatusMsg{Name: "markets", Detail: err.Error()})
			errCh <- fmt.Errorf("failed to start modules: %w", err)
			return
		}
		dashboard.Send(ui.ConnectionStatusMsg{Name: "markets", Connected: true})

		detector := arbitrageDI.GetDetector(mono.Services())
		if err := detector.Start(ctx); err != nil {
			errCh <- fmt.Errorf("failed to start detector: %w", err)
			return
		}

		<-ctx.Done()
		errCh <- detector.Stop()
	}()

	go func() {
		<-ctx.Done()
		dashboard.Quit()
	}()

	runErr := dashboard.Run()
	cancel()
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("detector did not stop in time")
	}
}
