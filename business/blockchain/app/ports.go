// Package app holds the blockchain use cases and the ports its adapters fill.
package app

import (
	"context"
	"io"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
)

// BlockSubscriber is a source of chain heads. Implementations own their
// connection and release it on Close.
type BlockSubscriber interface {
	// Subscribe delivers heads until ctx ends or the subscriber closes, at
	// which point the channel is closed. Heads may be dropped when the
	// consumer lags.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock fetches the current head on demand.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	State() domain.ConnectionState
	io.Closer
}

// GasOracle quotes the price the detector charges per unit of gas.
type GasOracle interface {
	GasPrice(ctx context.Context) (*domain.GasPrice, error)
	io.Closer
}
