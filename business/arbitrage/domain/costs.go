// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SwapsPerRoute is the number of swaps in a two-market round trip.
const SwapsPerRoute = 2

// GasQuote prices gas for one scan cycle in a given quote token.
type GasQuote struct {
	// PriceWei is the gas price per unit.
	PriceWei *big.Int
	// GasPerSwap is the gas used by one swap.
	GasPerSwap uint64
	// QuotePerWei converts native wei into raw quote units. It is 1 when
	// the quote token is the wrapped native token.
	QuotePerWei decimal.Decimal
}

// NewNativeGasQuote prices gas in the wrapped native token.
func NewNativeGasQuote(priceWei *big.Int, gasPerSwap uint64) GasQuote {
	return GasQuote{
		PriceWei:    priceWei,
		GasPerSwap:  gasPerSwap,
		QuotePerWei: decimal.NewFromInt(1),
	}
}

// Units returns the gas used by n swaps.
func (g GasQuote) Units(swaps int) uint64 {
	return g.GasPerSwap * uint64(swaps)
}

// CostWei returns gasPrice * gasPerSwap * swaps.
func (g GasQuote) CostWei(swaps int) *big.Int {
	if g.PriceWei == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(g.PriceWei, new(big.Int).SetUint64(g.Units(swaps)))
}

// Cost returns the gas of n swaps in raw quote units, rounded up so a
// reported net profit is never overstated.
func (g GasQuote) Cost(swaps int) *big.Int {
	wei := g.CostWei(swaps)
	if g.QuotePerWei.Equal(decimal.NewFromInt(1)) {
		return wei
	}
	return decimal.NewFromBigInt(wei, 0).Mul(g.QuotePerWei).Ceil().BigInt()
}
