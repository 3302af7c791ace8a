// Package fixedpoint implements exact unsigned 256-bit arithmetic and the
// integer square root used by the pricing math.
//
// Every operation reports overflow, underflow and division by zero as an
// error instead of wrapping.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrUnderflow      = errors.New("fixedpoint: underflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrNegative       = errors.New("fixedpoint: negative value")
)

// MaxUint256 is 2^256 - 1.
var MaxUint256 = new(uint256.Int).SetAllOne()

// FromBig converts a non-negative big.Int that fits in 256 bits.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	if b.Sign() < 0 {
		return nil, ErrNegative
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// MustFromDecimal parses a base-10 string. Panics on invalid input; meant for
// constants and tests.
func MustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x - y.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	if x.Lt(y) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(x, y), nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div returns floor(x / y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// MulDiv returns floor(x * y / d) with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Cmp compares x and y and returns -1, 0 or +1.
func Cmp(x, y *uint256.Int) int {
	return x.Cmp(y)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}
