// Package arbitrage implements the arbitrage bounded context: pairwise
// opportunity detection, filtering, multi-pool routing and publishing.
package arbitrage

import (
	"context"
	"os"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/cfmm-arbitrage/business/arbitrage/di"
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/infra"
	blockchainDI "github.com/fd1az/cfmm-arbitrage/business/blockchain/di"
	chain "github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	marketDI "github.com/fd1az/cfmm-arbitrage/business/market/di"
	optimizerDI "github.com/fd1az/cfmm-arbitrage/business/optimizer/di"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct {
	// Dashboard, when set, receives every scan alongside the configured
	// sinks. The terminal UI plugs in here.
	Dashboard app.OpportunitySink
}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)

		engine, err := app.NewEngine(ThresholdsFrom(cfg), log)
		if err != nil {
			panic("failed to create arbitrage engine: " + err.Error())
		}
		return engine
	})

	di.RegisterToken(c, arbitrageDI.Filter, func(sr di.ServiceRegistry) *app.Filter {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)

		filter, err := app.NewFilter(ThresholdsFrom(cfg), log)
		if err != nil {
			panic("failed to create opportunity filter: " + err.Error())
		}
		return filter
	})

	di.RegisterToken(c, arbitrageDI.Sinks, func(sr di.ServiceRegistry) []app.OpportunitySink {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		tokens := sr.Get(monolith.ServiceTokens).(*asset.Registry)

		sinks, err := m.sinks(cfg.Sinks, tokens, log)
		if err != nil {
			panic("failed to create sinks: " + err.Error())
		}
		return sinks
	})

	di.RegisterToken(c, arbitrageDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		chainSvc := blockchainDI.GetBlockchainService(sr)

		// A disabled optimizer must stay an untyped nil interface.
		var opt app.RouteOptimizer
		if o := optimizerDI.GetHybridOptimizer(sr); o != nil {
			opt = o
		}

		detector, err := app.NewDetector(
			marketDI.GetMarketService(sr),
			chainSvc,
			chainSvc,
			arbitrageDI.GetEngine(sr),
			arbitrageDI.GetFilter(sr),
			opt,
			arbitrageDI.GetSinks(sr),
			DetectorConfigFrom(cfg),
			log,
		)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return detector
	})

	return nil
}

func (m *Module) sinks(cfg config.SinksConfig, tokens *asset.Registry, log logger.LoggerInterface) ([]app.OpportunitySink, error) {
	var out []app.OpportunitySink
	if cfg.Console && m.Dashboard == nil {
		out = append(out, infra.NewConsoleSink(os.Stdout, tokens))
	}
	if cfg.WebSocketURL != "" {
		ws, err := infra.NewWebSocketSink(cfg.WebSocketURL, log)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	if cfg.JournalPath != "" {
		out = append(out, infra.NewJournal(cfg.JournalPath, log))
	}
	if m.Dashboard != nil {
		out = append(out, m.Dashboard)
	}
	return out, nil
}

// ThresholdsFrom maps the arbitrage and gas settings onto filter thresholds.
func ThresholdsFrom(cfg *config.Config) domain.Thresholds {
	t := domain.Thresholds{
		MinProfit:      cfg.Arbitrage.MinProfit(),
		MinSpreadBps:   cfg.Arbitrage.MinSpreadBpsDecimal(),
		MaxSlippagePct: cfg.Arbitrage.MaxSlippagePctDecimal(),
		MaxTradePct:    cfg.Arbitrage.MaxTradePctDecimal(),
		GasPerSwap:     cfg.Gas.GasPerSwap,
		MaxReserveAge:  cfg.Arbitrage.MaxReserveAge,
	}
	if cfg.Arbitrage.MaxGasPriceGwei > 0 {
		t.MaxGasPrice = chain.GweiToWei(cfg.Arbitrage.MaxGasPriceGwei)
	}
	if t.GasPerSwap == 0 {
		t.GasPerSwap = domain.DefaultThresholds().GasPerSwap
	}
	return t
}

// DetectorConfigFrom builds the detector settings. Gas is paid in WETH.
func DetectorConfigFrom(cfg *config.Config) app.DetectorConfig {
	out := app.DetectorConfig{
		QuoteTokens:    cfg.Arbitrage.QuoteTokenAddresses(),
		Native:         asset.AddrWETH,
		ScanInterval:   cfg.Arbitrage.ScanInterval,
		BlockTriggered: cfg.Arbitrage.BlockTriggered,
		TopN:           cfg.Arbitrage.TopN,
		GasPerSwap:     cfg.Gas.GasPerSwap,
		Kappa:          cfg.Optimizer.Kappa,
	}
	if out.GasPerSwap == 0 {
		out.GasPerSwap = domain.DefaultThresholds().GasPerSwap
	}
	if out.Kappa <= 0 {
		out.Kappa = 1
	}
	return out
}

// Startup resolves the detector so wiring errors surface at boot. The
// caller starts the detection loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	arbitrageDI.GetDetector(mono.Services())

	mono.Logger().Info(ctx, "arbitrage module started",
		"quote_tokens", len(cfg.Arbitrage.QuoteTokens),
		"sinks", len(arbitrageDI.GetSinks(mono.Services())),
		"min_profit_wei", cfg.Arbitrage.MinProfitWei,
		"max_trade_pct", cfg.Arbitrage.MaxTradePct,
		"top_n", cfg.Arbitrage.TopN,
	)
	return nil
}
