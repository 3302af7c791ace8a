package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// MaxSqrtIterations bounds the Newton loop. From a bit-length guess the
// iteration converges quadratically, so inputs up to 2^512 need far fewer.
const MaxSqrtIterations = 256

var bigOne = big.NewInt(1)

// Sqrt returns floor(sqrt(n)) using Newton's method. converged is false when
// the iteration cap was hit; root is then the best estimate so far.
// Negative input yields 0, false.
func Sqrt(n *big.Int) (root *big.Int, converged bool) {
	if n == nil || n.Sign() < 0 {
		return new(big.Int), false
	}
	if n.Sign() == 0 {
		return new(big.Int), true
	}
	if n.Cmp(bigOne) == 0 {
		return big.NewInt(1), true
	}

	// 2^ceil(bits/2) is always >= sqrt(n), so the sequence decreases.
	x := new(big.Int).Lsh(bigOne, uint(n.BitLen()+1)/2)
	next := new(big.Int)
	diff := new(big.Int)

	converged = false
	for i := 0; i < MaxSqrtIterations; i++ {
		next.Quo(n, x)
		next.Add(next, x)
		next.Rsh(next, 1)

		diff.Sub(next, x)
		x.Set(next)
		if diff.CmpAbs(bigOne) <= 0 {
			converged = true
			break
		}
	}

	// Floor correction for the last +-1 step.
	sq := new(big.Int)
	for sq.Mul(x, x).Cmp(n) > 0 {
		x.Sub(x, bigOne)
	}
	up := new(big.Int).Add(x, bigOne)
	for sq.Mul(up, up).Cmp(n) <= 0 {
		x.Set(up)
		up.Add(up, bigOne)
	}

	return x, converged
}

// SqrtU256 is Sqrt over a 256-bit operand.
func SqrtU256(n *uint256.Int) (*uint256.Int, bool) {
	root, converged := Sqrt(n.ToBig())
	// floor(sqrt(2^256-1)) < 2^128, always fits.
	out, _ := uint256.FromBig(root)
	return out, converged
}
