package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
)

var hundred = decimal.NewFromInt(100)

// Thresholds bound what is reported as an opportunity. Zero values of
// MinSpreadBps, MaxGasPrice, MaxSlippagePct and MaxReserveAge disable the
// corresponding filter.
type Thresholds struct {
	// MinProfit is in raw quote units.
	MinProfit      *big.Int
	MinSpreadBps   decimal.Decimal
	MaxGasPrice    *big.Int
	MaxSlippagePct decimal.Decimal
	// MaxTradePct caps the input at this share of the buy pool's quote
	// reserve.
	MaxTradePct   decimal.Decimal
	GasPerSwap    uint64
	MaxReserveAge time.Duration
}

// DefaultThresholds returns permissive thresholds with a 20% trade cap
// and 150k gas per swap.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinProfit:   new(big.Int),
		MaxTradePct: decimal.NewFromInt(20),
		GasPerSwap:  150_000,
	}
}

// Validate fails fast on unusable thresholds.
func (t Thresholds) Validate() error {
	switch {
	case t.MinProfit == nil || t.MinProfit.Sign() < 0:
		return apperror.Validation(apperror.CodeConfigurationError, "min profit must be a non-negative integer")
	case t.MinSpreadBps.IsNegative():
		return apperror.Validation(apperror.CodeConfigurationError, "min spread must not be negative")
	case t.MaxGasPrice != nil && t.MaxGasPrice.Sign() < 0:
		return apperror.Validation(apperror.CodeConfigurationError, "max gas price must not be negative")
	case t.MaxSlippagePct.IsNegative() || t.MaxSlippagePct.GreaterThan(hundred):
		return apperror.Validation(apperror.CodeConfigurationError, "max slippage must be within 0-100")
	case !t.MaxTradePct.IsPositive() || t.MaxTradePct.GreaterThan(hundred):
		return apperror.Validation(apperror.CodeConfigurationError, "max trade percent must be within (0, 100]")
	case t.MaxReserveAge < 0:
		return apperror.Validation(apperror.CodeConfigurationError, "max reserve age must not be negative")
	}
	return nil
}

// MaxInput returns floor(reserve * MaxTradePct / 100).
func (t Thresholds) MaxInput(reserve *big.Int) *big.Int {
	return decimal.NewFromBigInt(reserve, 0).Mul(t.MaxTradePct).Div(hundred).Floor().BigInt()
}
