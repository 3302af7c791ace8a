package domain

import (
	"math"
	"math/big"
)

// Weighted is a two-token geometric mean pool, r0^w0 * r1^w1 = k
// (Balancer style). Weights are positive and sum to 1.
type Weighted struct {
	*pool
	weights [2]float64
}

var _ CFMM = (*Weighted)(nil)

func (*Weighted) sealed() {}

// Weights returns the normalized token weights.
func (w *Weighted) Weights() []float64 {
	return []float64{w.weights[0], w.weights[1]}
}

// TradingFunction returns r0^w0 * r1^w1.
func (w *Weighted) TradingFunction(reserves []*big.Int) (*big.Float, error) {
	if err := w.checkReserves(reserves); err != nil {
		return nil, err
	}
	r0, r1 := toFloat(reserves[0]), toFloat(reserves[1])
	return bigFloat(math.Pow(r0, w.weights[0]) * math.Pow(r1, w.weights[1])), nil
}

// TradingFunctionGradient returns [w0*k/r0, w1*k/r1]; a zero reserve
// yields a zero entry.
func (w *Weighted) TradingFunctionGradient(reserves []*big.Int) ([]*big.Float, error) {
	if err := w.checkReserves(reserves); err != nil {
		return nil, err
	}
	r0, r1 := toFloat(reserves[0]), toFloat(reserves[1])
	k := math.Pow(r0, w.weights[0]) * math.Pow(r1, w.weights[1])

	grad := make([]*big.Float, 2)
	for i, r := range []float64{r0, r1} {
		if r == 0 {
			grad[i] = new(big.Float)
			continue
		}
		grad[i] = bigFloat(w.weights[i] * k / r)
	}
	return grad, nil
}

// Arbitrage solves each direction in closed form. Tendering i for j, the
// optimum satisfies
//
//	r_i + g*t = [g * (w_i/w_j) * r_j * r_i^(w_i/w_j) * p_j/p_i]^(w_j/(w_i+w_j))
//
// evaluated in log space.
func (w *Weighted) Arbitrage(prices []float64) (Trade, error) {
	if err := w.checkPrices(prices); err != nil {
		return Trade{}, err
	}

	r := w.floatReserves()
	gamma := w.fee.Gamma()

	best := zeroTrade(2)
	for in := 0; in < 2; in++ {
		out := 1 - in
		tender := w.optimalTender(in, out, r, prices, gamma)
		if tender <= 0 {
			continue
		}
		receive := w.amountOut(in, out, r, gamma*tender)
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

func (w *Weighted) optimalTender(in, out int, r, prices []float64, gamma float64) float64 {
	rIn, rOut := r[in], r[out]
	pIn, pOut := prices[in], prices[out]
	if rIn <= 0 || rOut <= 0 || pOut <= 0 {
		return 0
	}

	limit := w.maxTrade * rIn
	if pIn == 0 {
		return limit
	}

	wIn, wOut := w.weights[in], w.weights[out]
	ratio := wIn / wOut

	// Spot price of in in units of out is (wIn/wOut)*rOut/rIn.
	if gamma*pOut*ratio*rOut <= pIn*rIn {
		return 0
	}

	logTarget := (wOut / (wIn + wOut)) *
		(math.Log(gamma) + math.Log(ratio) + math.Log(rOut) + ratio*math.Log(rIn) + math.Log(pOut) - math.Log(pIn))
	tender := (math.Exp(logTarget) - rIn) / gamma
	if tender <= 0 || math.IsNaN(tender) {
		return 0
	}
	return math.Min(tender, limit)
}

// amountOut returns r_out * (1 - (r_in/(r_in+eff))^(w_in/w_out)).
func (w *Weighted) amountOut(in, out int, r []float64, eff float64) float64 {
	ratio := w.weights[in] / w.weights[out]
	return r[out] * (1 - math.Pow(r[in]/(r[in]+eff), ratio))
}

// Clone returns an independent copy.
func (w *Weighted) Clone() CFMM {
	return &Weighted{pool: w.pool.clone(), weights: w.weights}
}
