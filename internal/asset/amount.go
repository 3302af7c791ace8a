package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilToken        = errors.New("asset: nil token")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for token")
)

// Amount is a raw on-chain quantity (smallest unit) tagged with its token.
type Amount struct {
	raw   *big.Int
	token *Token
}

// NewAmount copies raw. Negative values are rejected.
func NewAmount(token *Token, raw *big.Int) (Amount, error) {
	if token == nil {
		return Amount{}, ErrNilToken
	}
	if raw == nil {
		raw = new(big.Int)
	}
	if raw.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{raw: new(big.Int).Set(raw), token: token}, nil
}

func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

func (a Amount) Token() *Token { return a.token }

// ToDecimal converts to token units. Display only.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.raw == nil || a.token == nil {
		return decimal.Zero
	}
	return FormatUnits(a.raw, a.token.Decimals())
}

// String returns e.g. "1.5 WETH".
func (a Amount) String() string {
	if a.token == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().String(), a.token.Symbol())
}

// StringFixed returns a string with fixed decimal places.
func (a Amount) StringFixed(places int32) string {
	if a.token == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().StringFixed(places), a.token.Symbol())
}

// FormatUnits scales raw down by decimals. Works for signed values.
func FormatUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ParseUnits scales a decimal string up to raw units. Fractions finer than
// the token's decimals are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("asset: invalid decimal string: %w", err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrTooManyDecimals
	}
	return scaled.BigInt(), nil
}
