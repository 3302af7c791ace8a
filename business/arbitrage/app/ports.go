package app

import (
	"context"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	chain "github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	marketApp "github.com/fd1az/cfmm-arbitrage/business/market/app"
	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	optimizer "github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
)

// MarketSource refreshes reserves and hands out an immutable snapshot.
type MarketSource interface {
	Refresh(ctx context.Context, block uint64) (*market.Snapshot, marketApp.RefreshStats, error)
}

// GasPriceSource quotes the current gas price.
type GasPriceSource interface {
	GasPrice(ctx context.Context) (*chain.GasPrice, error)
}

// BlockSource notifies new blocks. A nil channel means blocks are not a
// trigger.
type BlockSource interface {
	SubscribeBlocks(ctx context.Context) (<-chan *chain.Block, error)
}

// RouteOptimizer solves the multi-pool routing problem.
type RouteOptimizer interface {
	Optimize(ctx context.Context, problem optimizer.Problem, utility optimizer.Utility, initial []float64) (*optimizer.Result, error)
}

// OpportunitySink receives the ranked opportunities of every scan.
type OpportunitySink interface {
	Start(ctx context.Context) error
	Publish(ctx context.Context, results []*domain.TradeResult) error
	Stop() error
}

// RouteSink is implemented by sinks that also accept optimizer routes.
type RouteSink interface {
	PublishRoute(ctx context.Context, route *domain.Route) error
}

// ScanObserver is implemented by sinks that also want every scan outcome,
// including scans with nothing to publish.
type ScanObserver interface {
	OnScan(ctx context.Context, report *ScanReport)
	OnScanError(ctx context.Context, block uint64, err error)
}
