// Package di names the blockchain services in the container. Only the
// facade is meant for other contexts; the adapters behind it are resolved
// by the blockchain module itself.
package di

import (
	"github.com/fd1az/cfmm-arbitrage/business/blockchain/app"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
)

// BlockchainService is the facade the arbitrage context consumes for gas
// quotes and chain heads.
var BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")

var (
	// BlockSubscriber resolves to nil unless scans are block-triggered.
	BlockSubscriber = di.NewToken[app.BlockSubscriber]("blockchain:blockSubscriber")
	// GasOracle is the configured quote source: static, station or rpc.
	GasOracle = di.NewToken[app.GasOracle]("blockchain:gasOracle")
)

func GetBlockchainService(sr di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(sr, BlockchainService)
}

func GetBlockSubscriber(sr di.ServiceRegistry) app.BlockSubscriber {
	return di.GetToken(sr, BlockSubscriber)
}

func GetGasOracle(sr di.ServiceRegistry) app.GasOracle {
	return di.GetToken(sr, GasOracle)
}
