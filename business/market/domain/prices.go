package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// SpotPrices returns the marginal price of every token reachable from
// numeraire through pools, per raw unit and in raw numeraire units. Within
// a pool the price ratio of tokens j and k is grad_j/grad_k of the trading
// function. Pools are visited in order; the first pool to reach a token
// prices it.
func SpotPrices(pools []CFMM, numeraire common.Address) map[common.Address]float64 {
	prices := map[common.Address]float64{numeraire: 1}

	for changed := true; changed; {
		changed = false
		for _, p := range pools {
			tokens := p.Tokens()
			anchor := -1
			for k, t := range tokens {
				if _, ok := prices[t]; ok {
					anchor = k
					break
				}
			}
			if anchor < 0 {
				continue
			}

			grad, err := p.TradingFunctionGradient(p.Reserves())
			if err != nil {
				continue
			}
			ga, _ := grad[anchor].Float64()
			if !(ga > 0) {
				continue
			}

			base := prices[tokens[anchor]]
			for j, t := range tokens {
				if _, ok := prices[t]; ok {
					continue
				}
				gj, _ := grad[j].Float64()
				if gj > 0 {
					prices[t] = base * gj / ga
					changed = true
				}
			}
		}
	}

	return prices
}
