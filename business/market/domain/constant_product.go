package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/fd1az/cfmm-arbitrage/internal/fixedpoint"
)

// ConstantProduct is a two-token x*y=k pool (Uniswap V2 style).
type ConstantProduct struct {
	*pool
}

var _ CFMM = (*ConstantProduct)(nil)

func (*ConstantProduct) sealed() {}

// TradingFunction returns r0*r1 exactly.
func (c *ConstantProduct) TradingFunction(reserves []*big.Int) (*big.Float, error) {
	if err := c.checkReserves(reserves); err != nil {
		return nil, err
	}
	k := new(big.Int).Mul(reserves[0], reserves[1])
	return new(big.Float).SetInt(k), nil
}

// TradingFunctionGradient returns [r1, r0].
func (c *ConstantProduct) TradingFunctionGradient(reserves []*big.Int) ([]*big.Float, error) {
	if err := c.checkReserves(reserves); err != nil {
		return nil, err
	}
	return []*big.Float{
		new(big.Float).SetInt(reserves[1]),
		new(big.Float).SetInt(reserves[0]),
	}, nil
}

// Arbitrage solves the single-pool problem in closed form for each direction
// and keeps the profitable one.
func (c *ConstantProduct) Arbitrage(prices []float64) (Trade, error) {
	if err := c.checkPrices(prices); err != nil {
		return Trade{}, err
	}

	r := c.floatReserves()
	gamma := c.fee.Gamma()

	best := zeroTrade(2)
	for in := 0; in < 2; in++ {
		out := 1 - in
		tender, receive := cpmmOptimal(r[in], r[out], prices[in], prices[out], gamma, c.maxTrade)
		if tender <= 0 {
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

// Clone returns an independent copy.
func (c *ConstantProduct) Clone() CFMM {
	return &ConstantProduct{pool: c.clone()}
}

// cpmmOptimal returns the tendered and received amounts that maximize
// pOut*received - pIn*tendered, with the tendered side capped at
// maxFrac*rIn. The unconstrained optimum satisfies
// rIn + gamma*t = sqrt(gamma*rIn*rOut*pOut/pIn).
func cpmmOptimal(rIn, rOut, pIn, pOut, gamma, maxFrac float64) (tender, receive float64) {
	if rIn <= 0 || rOut <= 0 || pOut <= 0 {
		return 0, 0
	}

	limit := maxFrac * rIn
	if pIn == 0 {
		tender = limit
	} else {
		// Marginal output price below input price: nothing to gain.
		if gamma*pOut*rOut <= pIn*rIn {
			return 0, 0
		}
		target := math.Sqrt(gamma*pOut/pIn) * math.Sqrt(rIn) * math.Sqrt(rOut)
		tender = (target - rIn) / gamma
		if tender <= 0 {
			return 0, 0
		}
		tender = math.Min(tender, limit)
	}

	eff := gamma * tender
	receive = rOut * eff / (rIn + eff)
	return tender, receive
}

// AmountOut applies the fee-adjusted constant product formula:
// out = x(D-N)*rOut / (rIn*D + x(D-N)).
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: zero reserve", ErrInvalidReserves)
	}

	withFee, err := fixedpoint.Mul(amountIn, uint256.NewInt(fee.Denominator-fee.Numerator))
	if err != nil {
		return nil, err
	}
	scaledIn, err := fixedpoint.Mul(reserveIn, uint256.NewInt(fee.Denominator))
	if err != nil {
		return nil, err
	}
	denominator, err := fixedpoint.Add(scaledIn, withFee)
	if err != nil {
		return nil, err
	}

	return fixedpoint.MulDiv(withFee, reserveOut, denominator)
}
