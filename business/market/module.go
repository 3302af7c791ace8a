// Package market implements the market bounded context: the tracked pools,
// their reserves and the snapshots published to the engines.
package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/cfmm-arbitrage/business/market/app"
	marketDI "github.com/fd1az/cfmm-arbitrage/business/market/di"
	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/business/market/infra/filefeed"
	"github.com/fd1az/cfmm-arbitrage/business/market/infra/onchain"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/monolith"
)

// Module implements the market bounded context.
type Module struct{}

// RegisterServices registers all market services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, marketDI.MarketsFeed, func(sr di.ServiceRegistry) app.MarketsFeed {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		return filefeed.New(cfg.Markets.File)
	})

	di.RegisterToken(c, marketDI.MarketDataSource, func(sr di.ServiceRegistry) app.MarketDataSource {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		eth := sr.Get(monolith.ServiceEthClient).(*ethclient.Client)

		source, err := newDataSource(cfg, eth, marketDI.GetMarketsFeed(sr), log)
		if err != nil {
			panic("failed to create market data source: " + err.Error())
		}
		return source
	})

	di.RegisterToken(c, marketDI.MarketService, func(sr di.ServiceRegistry) *app.MarketService {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		tokens := sr.Get(monolith.ServiceTokens).(*asset.Registry)

		factory := domain.NewFactory(
			domain.Fee{Numerator: cfg.Markets.FeeNumerator, Denominator: cfg.Markets.FeeDenominator},
			cfg.Markets.MaxTradeFraction,
		)

		svc, err := app.NewMarketService(
			marketDI.GetMarketsFeed(sr),
			marketDI.GetMarketDataSource(sr),
			factory,
			tokens,
			app.ServiceConfig{Concurrency: cfg.Markets.Concurrency},
			log,
		)
		if err != nil {
			panic("failed to create market service: " + err.Error())
		}
		return svc
	})

	return nil
}

// newDataSource picks where reserves come from. The file feed replays the
// reserves declared next to each pool; onchain reads contract state.
func newDataSource(cfg *config.Config, eth *ethclient.Client, feed app.MarketsFeed, log logger.LoggerInterface) (app.MarketDataSource, error) {
	switch cfg.Markets.Source {
	case "file":
		source, ok := feed.(app.MarketDataSource)
		if !ok {
			return nil, fmt.Errorf("markets feed %T cannot serve reserves", feed)
		}
		return source, nil

	case "onchain":
		if eth == nil {
			return nil, fmt.Errorf("onchain market source needs ethereum.http_url")
		}
		readerCfg := onchain.DefaultConfig()
		readerCfg.RequestsPerSecond = cfg.Ethereum.RequestsPerSecond
		readerCfg.Burst = cfg.Ethereum.Burst
		if cfg.Ethereum.CallTimeout > 0 {
			readerCfg.CallTimeout = cfg.Ethereum.CallTimeout
		}
		if common.IsHexAddress(cfg.Ethereum.MulticallAddress) {
			readerCfg.MulticallAddress = common.HexToAddress(cfg.Ethereum.MulticallAddress)
		}
		if cfg.Ethereum.UseMulticall {
			return onchain.NewMulticallReader(eth, readerCfg, log)
		}
		return onchain.NewReader(eth, readerCfg, log)
	}
	return nil, fmt.Errorf("unknown market source %q", cfg.Markets.Source)
}

// Startup loads the pool definitions and publishes the first snapshot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := marketDI.GetMarketService(mono.Services())

	n, err := svc.LoadMarkets(ctx)
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}

	snap, stats, err := svc.Refresh(ctx, 0)
	if err != nil {
		log.Warn(ctx, "initial reserve refresh failed", "error", err)
	} else {
		log.Info(ctx, "market module started",
			"pools", n,
			"snapshot_pools", snap.Len(),
			"failed", len(stats.Failed),
			"source", mono.Config().Markets.Source,
		)
	}

	return nil
}
