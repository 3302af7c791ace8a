// Package domain contains the pool (CFMM) model for the market context.
package domain

import (
	"fmt"
	"math/big"
)

// Fee is a rational swap fee Numerator/Denominator, 0 <= N < D.
//
// The fee is retained from the tendered amount: a swap tendering t credits
// the pool invariant with t*(D-N)/D. Conversely, crediting an effective e
// requires tendering e*D/(D-N).
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

// FeeUniswapV2 is the 0.3% fee of Uniswap V2 style pools.
var FeeUniswapV2 = Fee{Numerator: 3, Denominator: 1000}

// Validate checks 0 <= N < D.
func (f Fee) Validate() error {
	if f.Denominator == 0 {
		return fmt.Errorf("fee denominator must be positive")
	}
	if f.Numerator >= f.Denominator {
		return fmt.Errorf("fee %d/%d must be below 1", f.Numerator, f.Denominator)
	}
	return nil
}

// Gamma returns the post-fee multiplier (D-N)/D.
func (f Fee) Gamma() float64 {
	return float64(f.Denominator-f.Numerator) / float64(f.Denominator)
}

// Rate returns N/D.
func (f Fee) Rate() float64 {
	return float64(f.Numerator) / float64(f.Denominator)
}

// Effective returns floor(tendered*(D-N)/D).
func (f Fee) Effective(tendered *big.Int) *big.Int {
	out := new(big.Int).Mul(tendered, new(big.Int).SetUint64(f.Denominator-f.Numerator))
	return out.Quo(out, new(big.Int).SetUint64(f.Denominator))
}

// Tendered returns floor(effective*D/(D-N)), the amount to tender so the
// pool credits effective.
func (f Fee) Tendered(effective *big.Int) *big.Int {
	out := new(big.Int).Mul(effective, new(big.Int).SetUint64(f.Denominator))
	return out.Quo(out, new(big.Int).SetUint64(f.Denominator-f.Numerator))
}

// EffectiveFloat is the float form of Effective.
func (f Fee) EffectiveFloat(tendered float64) float64 {
	return tendered * f.Gamma()
}

// TenderedFloat is the float form of Tendered.
func (f Fee) TenderedFloat(effective float64) float64 {
	return effective * float64(f.Denominator) / float64(f.Denominator-f.Numerator)
}

func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}
