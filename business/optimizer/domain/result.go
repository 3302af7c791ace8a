package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Reason explains why a run stopped.
type Reason string

const (
	ReasonConverged        Reason = "converged"
	ReasonMaxIterations    Reason = "max_iterations"
	ReasonLineSearchFailed Reason = "line_search_failed"
	ReasonCancelled        Reason = "cancelled"
	// ReasonBoundary means the run stalled with prices at zero and no trade
	// among the unpriced pools cleared the shortfall. Trades are the
	// closest found.
	ReasonBoundary         Reason = "boundary"
)

// PoolTrade is one market's trade at the final prices.
type PoolTrade struct {
	Pool  common.Address
	Delta []float64
	Value float64
}

// Result is the outcome of an optimization run. Prices and trades are in
// raw token units.
type Result struct {
	Tokens []common.Address
	Prices []float64
	// NetTrade is sum_i A_i delta_i.
	NetTrade     []float64
	PoolTrades   []PoolTrade
	DualValue    float64
	GradientNorm float64
	Iterations   int
	Converged    bool
	Reason       Reason
	// Trace holds the dual value of every accepted iterate, starting point
	// included. It is non-increasing.
	Trace   []float64
	Elapsed time.Duration
}

// ActiveTrades returns the pool trades that move tokens.
func (r *Result) ActiveTrades() []PoolTrade {
	var out []PoolTrade
	for _, t := range r.PoolTrades {
		for _, d := range t.Delta {
			if d != 0 {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// PoolError reports a market whose arbitrage oracle failed. It aborts the
// whole run since dropping the market would bias the clearing prices.
type PoolError struct {
	Pool common.Address
	Err  error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("pool %s: %v", e.Pool.Hex(), e.Err)
}

func (e *PoolError) Unwrap() error { return e.Err }
