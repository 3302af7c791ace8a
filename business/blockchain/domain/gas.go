// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"
)

// GasPrice is a gas price quote in wei.
type GasPrice struct {
	Wei       *big.Int
	Source    string
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int, source string, at time.Time) *GasPrice {
	return &GasPrice{
		Wei:       new(big.Int).Set(wei),
		Source:    source,
		Timestamp: at,
	}
}

// GweiToWei converts a gwei amount, rounding down to whole wei.
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return new(big.Int)
	}
	f := new(big.Float).SetPrec(128).SetFloat64(gwei)
	f.Mul(f, big.NewFloat(1e9))
	wei, _ := f.Int(nil)
	return wei
}

// Gwei returns the price in gwei for display and metrics.
func (g *GasPrice) Gwei() float64 {
	f := new(big.Float).SetInt(g.Wei)
	f.Quo(f, big.NewFloat(1e9))
	v, _ := f.Float64()
	return v
}

// Age returns how old the quote is at now.
func (g *GasPrice) Age(now time.Time) time.Duration {
	return now.Sub(g.Timestamp)
}

// Cost returns gasUnits * price in wei.
func (g *GasPrice) Cost(gasUnits uint64) *big.Int {
	return new(big.Int).Mul(g.Wei, new(big.Int).SetUint64(gasUnits))
}
