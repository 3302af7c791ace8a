// Package domain holds the optimizer's utility functions, configuration
// and results.
package domain

import (
	"fmt"
	"math"
)

// Conjugate is the optimal value of sup_psi U(psi) - prices·psi and its
// gradient with respect to prices, which is -psi*.
type Conjugate struct {
	Value    float64
	Gradient []float64
}

// Utility scores a net trade over the global token universe.
type Utility interface {
	// Value returns U(netTrade), or -Inf when netTrade is infeasible.
	Value(netTrade []float64) float64
	// Optimal evaluates the conjugate at prices. Any negative price yields
	// Value = +Inf and a zero gradient.
	Optimal(prices []float64) (Conjugate, error)
}

// Quadratic is U(psi) = c·psi - 1/2 sum_j w_j (psi_j - t_j)^2. Its conjugate
// has the closed form psi* = t + (c - v)/w.
type Quadratic struct {
	linear  []float64
	weights []float64
	target  []float64
}

var _ Utility = (*Quadratic)(nil)

// NewQuadratic validates the coefficients. Weights must be positive.
func NewQuadratic(linear, weights, target []float64) (*Quadratic, error) {
	n := len(weights)
	if n == 0 || len(linear) != n || len(target) != n {
		return nil, fmt.Errorf("quadratic utility: mismatched lengths %d/%d/%d", len(linear), n, len(target))
	}
	for j := 0; j < n; j++ {
		if !(weights[j] > 0) || math.IsInf(weights[j], 0) {
			return nil, fmt.Errorf("quadratic utility: weight %d is %v", j, weights[j])
		}
		if !finite(linear[j]) || !finite(target[j]) {
			return nil, fmt.Errorf("quadratic utility: coefficient %d is not finite", j)
		}
	}
	return &Quadratic{
		linear:  append([]float64(nil), linear...),
		weights: append([]float64(nil), weights...),
		target:  append([]float64(nil), target...),
	}, nil
}

// NewQuadraticTarget prefers net trades close to target.
func NewQuadraticTarget(target []float64, weight float64) (*Quadratic, error) {
	n := len(target)
	return NewQuadratic(make([]float64, n), fill(n, weight), target)
}

// NewExactOut asks for amount of token out of n, with no other net flow.
func NewExactOut(n, token int, amount, weight float64) (*Quadratic, error) {
	if token < 0 || token >= n {
		return nil, fmt.Errorf("exact out: token index %d outside [0, %d)", token, n)
	}
	target := make([]float64, n)
	target[token] = amount
	return NewQuadraticTarget(target, weight)
}

// NewRegularizedArbitrage values net trades at refPrices with a quadratic
// penalty that keeps trades within pool depth: w_j = kappa*ref_j/depth_j.
// Reference prices and depths must be positive.
func NewRegularizedArbitrage(refPrices, depths []float64, kappa float64) (*Quadratic, error) {
	n := len(refPrices)
	if len(depths) != n {
		return nil, fmt.Errorf("regularized arbitrage: %d prices for %d depths", n, len(depths))
	}
	if !(kappa > 0) {
		return nil, fmt.Errorf("regularized arbitrage: kappa must be positive, got %v", kappa)
	}
	weights := make([]float64, n)
	for j := 0; j < n; j++ {
		if !(refPrices[j] > 0) || !(depths[j] > 0) {
			return nil, fmt.Errorf("regularized arbitrage: token %d has price %v depth %v", j, refPrices[j], depths[j])
		}
		weights[j] = kappa * refPrices[j] / depths[j]
	}
	return NewQuadratic(refPrices, weights, make([]float64, n))
}

// Len returns the number of tokens the utility covers.
func (q *Quadratic) Len() int { return len(q.weights) }

func (q *Quadratic) Value(netTrade []float64) float64 {
	if len(netTrade) != len(q.weights) {
		return math.Inf(-1)
	}
	var u float64
	for j, psi := range netTrade {
		d := psi - q.target[j]
		u += q.linear[j]*psi - 0.5*q.weights[j]*d*d
	}
	return u
}

func (q *Quadratic) Optimal(prices []float64) (Conjugate, error) {
	if len(prices) != len(q.weights) {
		return Conjugate{}, fmt.Errorf("quadratic utility: %d prices for %d tokens", len(prices), len(q.weights))
	}

	grad := make([]float64, len(prices))
	for _, v := range prices {
		if math.IsNaN(v) {
			return Conjugate{}, fmt.Errorf("quadratic utility: NaN price")
		}
		if v < 0 {
			return Conjugate{Value: math.Inf(1), Gradient: grad}, nil
		}
	}

	var value float64
	for j, v := range prices {
		a := q.linear[j] - v
		psi := q.target[j] + a/q.weights[j]
		value += a*a/(2*q.weights[j]) + a*q.target[j]
		grad[j] = -psi
	}
	return Conjugate{Value: value, Gradient: grad}, nil
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
