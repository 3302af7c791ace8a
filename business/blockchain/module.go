// Package blockchain implements the blockchain bounded context: gas price
// quotes and new block notifications.
package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/app"
	blockchainDI "github.com/fd1az/cfmm-arbitrage/business/blockchain/di"
	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	"github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/ethereum"
	"github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/gasstation"
	"github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/static"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
	"github.com/fd1az/cfmm-arbitrage/internal/httpclient"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.GasOracle, func(sr di.ServiceRegistry) app.GasOracle {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		eth := sr.Get(monolith.ServiceEthClient).(*ethclient.Client)

		oracle, err := newGasOracle(cfg, eth, log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	// Nil when blocks are not a trigger.
	di.RegisterToken(c, blockchainDI.BlockSubscriber, func(sr di.ServiceRegistry) app.BlockSubscriber {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		eth := sr.Get(monolith.ServiceEthClient).(*ethclient.Client)

		if !cfg.Arbitrage.BlockTriggered {
			return nil
		}

		var heads ethereum.HeaderReader
		if eth != nil {
			heads = eth
		}

		sub, err := ethereum.NewSubscriber(ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL), heads, log)
		if err != nil {
			panic("failed to create subscriber: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		return app.NewBlockchainService(
			blockchainDI.GetBlockSubscriber(sr),
			blockchainDI.GetGasOracle(sr),
		)
	})

	return nil
}

func newGasOracle(cfg *config.Config, eth *ethclient.Client, log logger.LoggerInterface) (app.GasOracle, error) {
	switch cfg.Gas.Source {
	case "static":
		return static.New(cfg.Gas.StaticGwei), nil
	case "station":
		opts := []httpclient.ClientOption{httpclient.WithProviderName("gas-station")}
		if cfg.Gas.StationTimeout > 0 {
			opts = append(opts, httpclient.WithRequestTimeout(cfg.Gas.StationTimeout))
		}
		if cfg.Gas.StationAPIKey != "" {
			opts = append(opts, httpclient.WithHeaders(map[string]string{"Authorization": cfg.Gas.StationAPIKey}))
		}
		client, err := httpclient.NewInstrumentedClient(opts...)
		if err != nil {
			return nil, err
		}
		return gasstation.New(gasstation.Config{
			URL:         cfg.Gas.StationURL,
			CacheTTL:    cfg.Gas.CacheTTL,
			MaxGasPrice: cfg.Gas.MaxGasPriceGwei,
		}, client, log)
	case "rpc":
		if eth == nil {
			return nil, fmt.Errorf("rpc gas source needs ethereum.http_url")
		}
		oracleCfg := ethereum.DefaultGasOracleConfig()
		oracleCfg.CacheTTL = cfg.Gas.CacheTTL
		oracleCfg.MaxGasPrice = domain.GweiToWei(cfg.Gas.MaxGasPriceGwei)
		return ethereum.NewGasOracle(eth, oracleCfg, log)
	}
	return nil, fmt.Errorf("unknown gas source %q", cfg.Gas.Source)
}

// Startup warms the gas oracle so configuration errors surface at boot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := blockchainDI.GetBlockchainService(mono.Services())
	mono.OnClose(svc.Close)

	price, err := svc.GasPrice(ctx)
	if err != nil {
		log.Warn(ctx, "initial gas price unavailable", "error", err)
	} else {
		log.Info(ctx, "blockchain module started", "gas_gwei", price.Gwei(), "gas_source", price.Source)
	}

	return nil
}
