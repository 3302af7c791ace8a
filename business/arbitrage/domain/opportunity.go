package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeResult is a profitable round trip quote -> buy pool -> base ->
// sell pool -> quote. Amounts are raw integer units: InputAmount,
// OutputAmount, GrossProfit, GasCost and NetProfit in the quote token,
// IntermediateAmount in the base token.
type TradeResult struct {
	ID     uuid.UUID
	Source Source

	BuyPool    common.Address
	SellPool   common.Address
	BaseToken  common.Address
	QuoteToken common.Address

	InputAmount        *big.Int
	IntermediateAmount *big.Int
	OutputAmount       *big.Int
	GrossProfit        *big.Int

	GasUnits    uint64
	GasPriceWei *big.Int
	GasCost     *big.Int
	NetProfit   *big.Int

	// ProfitPct is NetProfit/InputAmount*100. ProfitPctDefined is false
	// when InputAmount is zero.
	ProfitPct        decimal.Decimal
	ProfitPctDefined bool

	// SpreadBps is the sell pool's spot price over the buy pool's, in bps.
	SpreadBps decimal.Decimal
	// PriceImpactPct is the output shortfall against spot prices after
	// fees, in percent.
	PriceImpactPct decimal.Decimal
	// TradePct is InputAmount as a percentage of the buy pool's quote
	// reserve.
	TradePct decimal.Decimal
	// Clamped is set when the optimum was cut to the trade size cap.
	Clamped bool

	Block      uint64
	ReservesAt time.Time
	DetectedAt time.Time
}

// IsProfitable reports whether the net profit is positive.
func (r *TradeResult) IsProfitable() bool {
	return r.NetProfit != nil && r.NetProfit.Sign() > 0
}

// ProfitPercent returns net/input*100 rounded to 6 places. The second
// result is false when input is zero.
func ProfitPercent(net, input *big.Int) (decimal.Decimal, bool) {
	if input == nil || input.Sign() == 0 {
		return decimal.Zero, false
	}
	return Percent(net, input), true
}

// Percent returns a/b*100 rounded to 6 places; b must be non-zero.
func Percent(a, b *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(a, 0).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromBigInt(b, 0), 6)
}
