package domain

// Source tells which engine produced a candidate.
type Source string

const (
	// SourceAnalytical is the closed-form two-market engine.
	SourceAnalytical Source = "analytical"
	// SourceOptimizer is the multi-pool optimizer.
	SourceOptimizer Source = "optimizer"
)

// RejectReason names the filter that dropped a candidate.
type RejectReason string

const (
	RejectNonPositiveProfit RejectReason = "non_positive_profit"
	RejectBelowMinProfit    RejectReason = "below_min_profit"
	RejectBelowMinSpread    RejectReason = "below_min_spread"
	RejectGasPriceTooHigh   RejectReason = "gas_price_too_high"
	RejectSlippageExceeded  RejectReason = "slippage_exceeded"
	RejectTradeTooLarge     RejectReason = "trade_too_large"
	RejectStaleReserves     RejectReason = "stale_reserves"
)

// RejectReasons lists every reason in evaluation order.
var RejectReasons = []RejectReason{
	RejectNonPositiveProfit,
	RejectBelowMinProfit,
	RejectBelowMinSpread,
	RejectGasPriceTooHigh,
	RejectSlippageExceeded,
	RejectTradeTooLarge,
	RejectStaleReserves,
}

// String returns a human-readable description of the reason.
func (r RejectReason) String() string {
	switch r {
	case RejectNonPositiveProfit:
		return "net profit is not positive"
	case RejectBelowMinProfit:
		return "net profit below minimum"
	case RejectBelowMinSpread:
		return "spread below minimum"
	case RejectGasPriceTooHigh:
		return "gas price above maximum"
	case RejectSlippageExceeded:
		return "price impact above maximum"
	case RejectTradeTooLarge:
		return "trade exceeds liquidity share"
	case RejectStaleReserves:
		return "reserves are stale"
	default:
		return string(r)
	}
}
