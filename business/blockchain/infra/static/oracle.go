// Package static provides a fixed gas price oracle for offline and replay runs.
package static

import (
	"context"
	"math/big"
	"time"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
)

// Oracle always quotes the same price.
type Oracle struct {
	wei *big.Int
}

// New creates an oracle quoting gwei.
func New(gwei float64) *Oracle {
	return &Oracle{wei: domain.GweiToWei(gwei)}
}

func (o *Oracle) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return domain.NewGasPrice(o.wei, "static", time.Now()), nil
}

// Close is a no-op.
func (o *Oracle) Close() error { return nil }
