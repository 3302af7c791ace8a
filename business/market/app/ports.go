// Package app contains the market service and the ports it depends on.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
)

// MarketDataSource reads current reserves for one pool.
type MarketDataSource interface {
	domain.ReserveReader
}

// ReserveResult is one pool's outcome in a batched read. Err is set when
// the pool could not be read; Reserves is then nil.
type ReserveResult struct {
	Pool     common.Address
	Reserves []*big.Int
	Err      error
}

// BatchReserveReader is implemented by sources that can read many pools in
// one round trip. Results are index-aligned with refs. A non-nil error
// means the whole batch failed.
type BatchReserveReader interface {
	ReadReservesBatch(ctx context.Context, refs []domain.PoolRef) ([]ReserveResult, error)
}

// MarketsFeed lists the pools to track.
type MarketsFeed interface {
	Markets(ctx context.Context) ([]domain.PoolSpec, error)
}

// TokenCatalog is implemented by feeds that also carry token metadata.
type TokenCatalog interface {
	Tokens() []*asset.Token
}
