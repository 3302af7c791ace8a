package app

import (
	"context"
	"math"

	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
)

const (
	armijoC1         = 1e-4
	maxBacktracks    = 40
	backtrackFactor  = 0.5
	steepestFraction = 0.1
)

// point is an evaluated iterate in scaled coordinates.
type point struct {
	x      []float64
	value  float64
	grad   []float64
	trades []market.Trade
}

// evalFn evaluates the scaled dual at x.
type evalFn func(ctx context.Context, x []float64) (point, error)

// backtrack runs a projected Armijo line search from p along d. Trials are
// projected onto x >= 0 and accepted when
// f(trial) <= min(f(p), f(p) + c1 * grad(p)·(trial - p)). ok is false when no step
// passes within maxBacktracks halvings.
func backtrack(ctx context.Context, eval evalFn, p point, d []float64) (next point, ok bool, err error) {
	step := 1.0
	trial := make([]float64, len(p.x))
	s := make([]float64, len(p.x))

	for i := 0; i < maxBacktracks; i++ {
		moved := false
		for j := range trial {
			trial[j] = max(0, p.x[j]+step*d[j])
			s[j] = trial[j] - p.x[j]
			if s[j] != 0 {
				moved = true
			}
		}
		if !moved {
			return point{}, false, nil
		}

		cand, err := eval(ctx, append([]float64(nil), trial...))
		if err != nil {
			return point{}, false, err
		}
		// Projection can turn grad·s positive, so the plain decrease check
		// keeps the dual from rising.
		if cand.value <= p.value && cand.value <= p.value+armijoC1*dot(p.grad, s) {
			return cand, true, nil
		}
		step *= backtrackFactor
	}

	return point{}, false, nil
}

// steepest returns the projected steepest descent direction sized so a unit
// step moves the largest coordinate by a fraction of the current scale.
func steepest(x, pg []float64) []float64 {
	var xMax, gMax float64
	for j := range pg {
		xMax = max(xMax, math.Abs(x[j]))
		gMax = max(gMax, math.Abs(pg[j]))
	}
	d := make([]float64, len(pg))
	if gMax == 0 {
		return d
	}
	k := steepestFraction * max(1, xMax) / gMax
	for j := range pg {
		d[j] = -k * pg[j]
	}
	return d
}

// projectedGradient zeroes components that push against the x >= 0 bound.
func projectedGradient(x, g []float64) []float64 {
	out := make([]float64, len(g))
	for j := range g {
		if x[j] <= 0 && g[j] > 0 {
			continue
		}
		out[j] = g[j]
	}
	return out
}

// clampDirection drops components that would leave the feasible set from
// a point on its boundary.
func clampDirection(x, d []float64) {
	for j := range d {
		if x[j] <= 0 && d[j] < 0 {
			d[j] = 0
		}
	}
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
