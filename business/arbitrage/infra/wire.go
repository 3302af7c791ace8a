// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"math"
	"math/big"
	"time"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
)

// Message types on the wire.
const (
	TypeOpportunities = "opportunities"
	TypeRoute         = "route"
)

// Envelope wraps every message a sink emits.
type Envelope struct {
	Type string    `json:"type"`
	Sent time.Time `json:"sent"`
	Data any       `json:"data"`
}

// OpportunityJSON is the wire form of a TradeResult. Integer amounts are
// decimal strings so they survive JSON number limits.
type OpportunityJSON struct {
	ID                 string    `json:"id"`
	Source             string    `json:"source"`
	BuyPool            string    `json:"buy_pool"`
	SellPool           string    `json:"sell_pool"`
	BaseToken          string    `json:"base_token"`
	QuoteToken         string    `json:"quote_token"`
	InputAmount        string    `json:"input_amount"`
	IntermediateAmount string    `json:"intermediate_amount"`
	OutputAmount       string    `json:"output_amount"`
	GrossProfit        string    `json:"gross_profit"`
	GasUnits           uint64    `json:"gas_units"`
	GasPriceWei        string    `json:"gas_price_wei"`
	GasCost            string    `json:"gas_cost"`
	NetProfit          string    `json:"net_profit"`
	ProfitPct          *string   `json:"profit_pct"`
	SpreadBps          string    `json:"spread_bps"`
	PriceImpactPct     string    `json:"price_impact_pct"`
	TradePct           string    `json:"trade_pct"`
	Clamped            bool      `json:"clamped"`
	Block              uint64    `json:"block"`
	DetectedAt         time.Time `json:"detected_at"`
}

// RouteLegJSON is one pool's part of a route.
type RouteLegJSON struct {
	Pool   string    `json:"pool"`
	Tokens []string  `json:"tokens"`
	Delta  []float64 `json:"delta"`
}

// RouteJSON is the wire form of an optimizer route.
type RouteJSON struct {
	ID           string         `json:"id"`
	QuoteToken   string         `json:"quote_token"`
	Tokens       []string       `json:"tokens"`
	Prices       []float64      `json:"prices"`
	NetTrade     []float64      `json:"net_trade"`
	Legs         []RouteLegJSON `json:"legs"`
	ValueQuote   float64        `json:"value_quote"`
	Converged    bool           `json:"converged"`
	Reason       string         `json:"reason"`
	Iterations   int            `json:"iterations"`
	GradientNorm *float64       `json:"gradient_norm"`
	Block        uint64         `json:"block"`
	DetectedAt   time.Time      `json:"detected_at"`
}

// ToOpportunityJSON converts r to its wire form.
func ToOpportunityJSON(r *domain.TradeResult) OpportunityJSON {
	out := OpportunityJSON{
		ID:                 r.ID.String(),
		Source:             string(r.Source),
		BuyPool:            r.BuyPool.Hex(),
		SellPool:           r.SellPool.Hex(),
		BaseToken:          r.BaseToken.Hex(),
		QuoteToken:         r.QuoteToken.Hex(),
		InputAmount:        str(r.InputAmount),
		IntermediateAmount: str(r.IntermediateAmount),
		OutputAmount:       str(r.OutputAmount),
		GrossProfit:        str(r.GrossProfit),
		GasUnits:           r.GasUnits,
		GasPriceWei:        str(r.GasPriceWei),
		GasCost:            str(r.GasCost),
		NetProfit:          str(r.NetProfit),
		SpreadBps:          r.SpreadBps.String(),
		PriceImpactPct:     r.PriceImpactPct.String(),
		TradePct:           r.TradePct.String(),
		Clamped:            r.Clamped,
		Block:              r.Block,
		DetectedAt:         r.DetectedAt.UTC(),
	}
	if r.ProfitPctDefined {
		pct := r.ProfitPct.String()
		out.ProfitPct = &pct
	}
	return out
}

// ToRouteJSON converts r to its wire form.
func ToRouteJSON(r *domain.Route) RouteJSON {
	out := RouteJSON{
		ID:           r.ID.String(),
		QuoteToken:   r.QuoteToken.Hex(),
		Tokens:       make([]string, len(r.Tokens)),
		Prices:       r.Prices,
		NetTrade:     r.NetTrade,
		Legs:         make([]RouteLegJSON, len(r.Legs)),
		ValueQuote:   r.ValueQuote,
		Converged:    r.Converged,
		Reason:       r.Reason,
		Iterations:   r.Iterations,
		Block:        r.Block,
		DetectedAt:   r.DetectedAt.UTC(),
	}
	if !math.IsInf(r.GradientNorm, 0) && !math.IsNaN(r.GradientNorm) {
		norm := r.GradientNorm
		out.GradientNorm = &norm
	}
	for i, t := range r.Tokens {
		out.Tokens[i] = t.Hex()
	}
	for i, l := range r.Legs {
		leg := RouteLegJSON{Pool: l.Pool.Hex(), Tokens: make([]string, len(l.Tokens)), Delta: l.Delta}
		for j, t := range l.Tokens {
			leg.Tokens[j] = t.Hex()
		}
		out.Legs[i] = leg
	}
	return out
}

func str(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
