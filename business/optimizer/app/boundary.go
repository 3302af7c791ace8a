package app

import (
	"context"
	"math"
	"slices"

	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
)

const (
	boundaryIterations = 500
	// boundaryFloor keeps relative prices off the simplex faces, where a
	// pool with both tokens unpriced would fall back to the zero trade.
	boundaryFloor = 1e-9
)

func onBoundary(x []float64) bool {
	return slices.ContainsFunc(x, func(v float64) bool { return v <= 0 })
}

// settleBoundary handles a run that stalled with some prices at zero.
//
// A pool whose tokens are all unpriced is indifferent between every
// feasible trade, so the zero trade the oracle reports is only one of its
// subgradients. The point is optimal when some choice of those trades
// leaves no shortfall on the unpriced tokens, with the rest of the excess
// demand already zero.
//
// Arbitrage is positively homogeneous, so the candidates are best responses
// to relative prices u over the unpriced tokens. The search minimizes
// h(u) = sum_i arb_i(u) + u·G over the simplex, G being the excess demand
// left by every other pool. Its gradient is the surplus per token, and at
// the minimizer each token with u_j > 0 has surplus min h, so the search
// stops as soon as no surplus is below -tol.
//
// The returned point carries the chosen trades; the free pools' values are
// zero at the stalled prices.
func (e *evaluator) settleBoundary(ctx context.Context, cur point, tol float64) (point, bool, error) {
	n := len(cur.x)

	var zero []int
	isZero := make([]bool, n)
	for j, v := range cur.x {
		if v <= 0 {
			zero = append(zero, j)
			isZero[j] = true
		}
	}

	var free []int
	for i, c := range e.problem.Couplings {
		if !slices.ContainsFunc(c.Global, func(g int) bool { return !isZero[g] }) {
			free = append(free, i)
		}
	}

	// Excess demand without the free pools.
	fixed := make([]float64, n)
	for i := range free {
		if d := cur.trades[free[i]].Delta; d != nil {
			e.problem.Couplings[free[i]].Lift(d, fixed)
		}
	}
	var rest float64
	for j := range fixed {
		fixed[j] = cur.grad[j] - fixed[j]/e.scales[j]
		if !isZero[j] {
			rest += fixed[j] * fixed[j]
		}
	}
	stationary := math.Sqrt(rest) < tol

	s := &boundarySearch{e: e, zero: zero, free: free, fixed: fixed}

	m := len(zero)
	u := make([]float64, m)
	for k := range u {
		u[k] = 1 / float64(m)
	}
	at, err := s.eval(u)
	if err != nil {
		return point{}, false, err
	}

	step := 1.0
	for iter := 0; iter < boundaryIterations && len(free) > 0; iter++ {
		if slices.Min(at.surplus) >= -tol {
			break
		}
		if err := ctx.Err(); err != nil {
			return point{}, false, err
		}

		next, moved, err := s.step(u, at, &step)
		if err != nil {
			return point{}, false, err
		}
		if !moved {
			break
		}
		u, at = next.u, next.boundaryEval
	}

	settled := point{
		x:      cur.x,
		value:  cur.value,
		grad:   make([]float64, n),
		trades: append([]market.Trade(nil), cur.trades...),
	}
	copy(settled.grad, fixed)
	for k, j := range zero {
		settled.grad[j] = at.surplus[k]
	}
	for idx, i := range free {
		settled.trades[i] = market.Trade{Delta: at.trades[idx].Delta}
	}

	return settled, stationary && slices.Min(at.surplus) >= -tol, nil
}

type boundarySearch struct {
	e     *evaluator
	zero  []int
	free  []int
	fixed []float64
}

type boundaryEval struct {
	h       float64
	surplus []float64
	trades  []market.Trade
}

// eval prices the free pools at relative prices u, given in scaled units.
func (s *boundarySearch) eval(u []float64) (boundaryEval, error) {
	n := len(s.fixed)
	raw := make([]float64, n)
	for k, j := range s.zero {
		raw[j] = u[k] / s.e.scales[j]
	}

	out := boundaryEval{
		surplus: make([]float64, len(s.zero)),
		trades:  make([]market.Trade, len(s.free)),
	}
	net := make([]float64, n)
	for idx, i := range s.free {
		m := s.e.problem.Markets[i]
		c := s.e.problem.Couplings[i]
		t, err := m.Arbitrage(c.Restrict(raw))
		if err != nil {
			return boundaryEval{}, &domain.PoolError{Pool: m.ID(), Err: err}
		}
		if t.Delta != nil {
			c.Lift(t.Delta, net)
		}
		out.trades[idx] = t
		out.h += t.Value
	}
	for k, j := range s.zero {
		out.surplus[k] = s.fixed[j] + net[j]/s.e.scales[j]
		out.h += u[k] * s.fixed[j]
	}
	return out, nil
}

type boundaryIterate struct {
	u []float64
	boundaryEval
}

// step takes one projected gradient step with backtracking. step carries
// the accepted length across calls. moved is false at a stationary point.
func (s *boundarySearch) step(u []float64, at boundaryEval, step *float64) (boundaryIterate, bool, error) {
	alpha := 2 * *step
	trial := make([]float64, len(u))
	d := make([]float64, len(u))

	for i := 0; i < maxBacktracks; i++ {
		for k := range trial {
			trial[k] = u[k] - alpha*at.surplus[k]
		}
		projectSimplex(trial, boundaryFloor)

		var moved bool
		for k := range d {
			d[k] = trial[k] - u[k]
			moved = moved || d[k] != 0
		}
		if !moved {
			return boundaryIterate{}, false, nil
		}

		cand, err := s.eval(trial)
		if err != nil {
			return boundaryIterate{}, false, err
		}
		if cand.h <= at.h+dot(at.surplus, d)+dot(d, d)/(2*alpha) {
			*step = alpha
			return boundaryIterate{u: append([]float64(nil), trial...), boundaryEval: cand}, true, nil
		}
		alpha *= backtrackFactor
	}
	return boundaryIterate{}, false, nil
}

// projectSimplex projects y in place onto {u : sum u = 1, u >= floor}.
func projectSimplex(y []float64, floor float64) {
	radius := 1 - floor*float64(len(y))

	sorted := make([]float64, len(y))
	for k := range y {
		y[k] -= floor
		sorted[k] = y[k]
	}
	slices.Sort(sorted)
	slices.Reverse(sorted)

	var cum, theta float64
	for k, v := range sorted {
		cum += v
		t := (cum - radius) / float64(k+1)
		if v-t > 0 {
			theta = t
		}
	}
	for k := range y {
		y[k] = max(y[k]-theta, 0) + floor
	}
}
