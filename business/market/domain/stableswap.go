package domain

import (
	"math"
	"math/big"
)

const (
	stableCoins         = 2
	stableMaxIterations = 255
	stableBisectSteps   = 200
)

// StableSwap is a two-coin Curve style pool with invariant
//
//	Ann*S + D = Ann*D + D^3 / (4*x0*x1),  Ann = A*n
//
// where S = x0+x1 and D is the invariant value.
type StableSwap struct {
	*pool
	amp uint64
}

var _ CFMM = (*StableSwap)(nil)

func (*StableSwap) sealed() {}

// Amplification returns A.
func (s *StableSwap) Amplification() uint64 { return s.amp }

func (s *StableSwap) leverage() float64 {
	return float64(s.amp * stableCoins)
}

// TradingFunction returns D computed in integer arithmetic.
func (s *StableSwap) TradingFunction(reserves []*big.Int) (*big.Float, error) {
	if err := s.checkReserves(reserves); err != nil {
		return nil, err
	}
	d := stableD(new(big.Int).SetUint64(s.amp*stableCoins), reserves[0], reserves[1])
	return new(big.Float).SetInt(d), nil
}

// TradingFunctionGradient returns dD/dx_i by implicit differentiation of
// the invariant.
func (s *StableSwap) TradingFunctionGradient(reserves []*big.Int) ([]*big.Float, error) {
	if err := s.checkReserves(reserves); err != nil {
		return nil, err
	}
	x0, x1 := toFloat(reserves[0]), toFloat(reserves[1])
	g0, g1 := stableGradient(s.leverage(), x0, x1)
	return []*big.Float{bigFloat(g0), bigFloat(g1)}, nil
}

// Arbitrage maximizes the concave profit of each direction by bisection on
// its derivative.
func (s *StableSwap) Arbitrage(prices []float64) (Trade, error) {
	if err := s.checkPrices(prices); err != nil {
		return Trade{}, err
	}

	x := s.floatReserves()
	if x[0] <= 0 || x[1] <= 0 {
		return zeroTrade(2), nil
	}

	ann := s.leverage()
	gamma := s.fee.Gamma()
	d := stableDFloat(ann, x[0], x[1])

	best := zeroTrade(2)
	for in := 0; in < 2; in++ {
		out := 1 - in
		tender := s.optimalTender(in, out, x, d, prices, gamma)
		if tender <= 0 {
			continue
		}
		receive := x[out] - stableYFloat(ann, x[in]+gamma*tender, d)
		if receive <= 0 {
			continue
		}
		value := prices[out]*receive - prices[in]*tender
		if value > best.Value {
			delta := make([]float64, 2)
			delta[in] = -tender
			delta[out] = receive
			best = Trade{Delta: delta, Value: value}
		}
	}

	return best, nil
}

func (s *StableSwap) optimalTender(in, out int, x []float64, d float64, prices []float64, gamma float64) float64 {
	pIn, pOut := prices[in], prices[out]
	if pOut <= 0 {
		return 0
	}
	limit := s.maxTrade * x[in]
	if pIn == 0 {
		return limit
	}

	ann := s.leverage()

	// Profit derivative at tendered t.
	slope := func(t float64) float64 {
		xin := x[in] + gamma*t
		y := stableYFloat(ann, xin, d)
		var gIn, gOut float64
		if in == 0 {
			gIn, gOut = stableGradient(ann, xin, y)
		} else {
			gOut, gIn = stableGradient(ann, y, xin)
		}
		return pOut*gamma*gIn/gOut - pIn
	}

	if slope(0) <= 0 {
		return 0
	}
	if slope(limit) >= 0 {
		return limit
	}

	lo, hi := 0.0, limit
	for i := 0; i < stableBisectSteps && hi-lo > 1e-12*limit; i++ {
		mid := (lo + hi) / 2
		if slope(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// Clone returns an independent copy.
func (s *StableSwap) Clone() CFMM {
	return &StableSwap{pool: s.pool.clone(), amp: s.amp}
}

// stableD computes the invariant by Newton iteration in integers.
func stableD(ann, x0, x1 *big.Int) *big.Int {
	sum := new(big.Int).Add(x0, x1)
	if sum.Sign() == 0 || x0.Sign() == 0 || x1.Sign() == 0 {
		return new(big.Int)
	}

	two := big.NewInt(stableCoins)
	three := big.NewInt(stableCoins + 1)
	one := big.NewInt(1)
	twoX0 := new(big.Int).Mul(x0, two)
	twoX1 := new(big.Int).Mul(x1, two)
	annS := new(big.Int).Mul(ann, sum)
	annMinus1 := new(big.Int).Sub(ann, one)

	d := new(big.Int).Set(sum)
	prev := new(big.Int)
	diff := new(big.Int)
	for i := 0; i < stableMaxIterations; i++ {
		dp := new(big.Int).Mul(d, d)
		dp.Quo(dp, twoX0)
		dp.Mul(dp, d)
		dp.Quo(dp, twoX1)

		prev.Set(d)

		num := new(big.Int).Mul(dp, two)
		num.Add(num, annS)
		num.Mul(num, d)
		den := new(big.Int).Mul(annMinus1, d)
		den.Add(den, new(big.Int).Mul(three, dp))
		d.Quo(num, den)

		if diff.Sub(d, prev).CmpAbs(one) <= 0 {
			break
		}
	}
	return d
}

func stableDFloat(ann, x0, x1 float64) float64 {
	sum := x0 + x1
	if x0 <= 0 || x1 <= 0 {
		return 0
	}
	d := sum
	for i := 0; i < stableMaxIterations; i++ {
		dp := d * d / (2 * x0) * d / (2 * x1)
		prev := d
		d = (ann*sum + 2*dp) * d / ((ann-1)*d + 3*dp)
		if math.Abs(d-prev) <= 1e-12*d {
			break
		}
	}
	return d
}

// stableYFloat solves the invariant for the other balance given x and D.
func stableYFloat(ann, x, d float64) float64 {
	c := d * d / (2 * x) * d / (2 * ann)
	b := x + d/ann
	y := d
	for i := 0; i < stableMaxIterations; i++ {
		prev := y
		y = (y*y + c) / (2*y + b - d)
		if math.Abs(y-prev) <= 1e-12*y {
			break
		}
	}
	return y
}

// stableGradient returns (dD/dx0, dD/dx1).
func stableGradient(ann, x0, x1 float64) (float64, float64) {
	if x0 <= 0 || x1 <= 0 {
		return 0, 0
	}
	d := stableDFloat(ann, x0, x1)
	p := 4 * x0 * x1
	den := ann - 1 + 3*d*d/p
	g0 := (ann + d*d*d/(p*x0)) / den
	g1 := (ann + d*d*d/(p*x1)) / den
	return g0, g1
}
