// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/fixedpoint"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	tracerName = "arbitrage"
	meterName  = "arbitrage"
)

type engineMetrics struct {
	pairs         metric.Int64Counter
	opportunities metric.Int64Counter
	duration      metric.Float64Histogram
}

// EvalStats summarizes one EvaluateMarkets call.
type EvalStats struct {
	Bases         int
	Pairs         int
	Opportunities int
	Errors        int
}

// Engine is the closed-form two-market arbitrage engine for constant
// product pools.
type Engine struct {
	thresholds domain.Thresholds
	logger     logger.LoggerInterface
	now        func() time.Time

	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine validates thresholds and creates an Engine.
func NewEngine(thresholds domain.Thresholds, log logger.LoggerInterface) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		thresholds: thresholds,
		logger:     log,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.pairs, err = meter.Int64Counter(
		"arbitrage_pairs_evaluated_total",
		metric.WithDescription("Ordered pool pairs evaluated"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return err
	}

	e.metrics.opportunities, err = meter.Int64Counter(
		"arbitrage_candidates_total",
		metric.WithDescription("Profitable candidates before filtering"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return err
	}

	e.metrics.duration, err = meter.Float64Histogram(
		"arbitrage_evaluate_duration_ms",
		metric.WithDescription("Duration of a market evaluation in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Thresholds returns the engine thresholds.
func (e *Engine) Thresholds() domain.Thresholds { return e.thresholds }

// legs holds the reserves of a round trip oriented by quote and base.
type legs struct {
	buyQuote, buyBase   *big.Int
	sellBase, sellQuote *big.Int
	buyFee, sellFee     market.Fee
	base                common.Address
}

func orient(buy, sell market.CFMM, quote common.Address) (legs, error) {
	if buy.Kind() != market.KindConstantProduct || sell.Kind() != market.KindConstantProduct {
		return legs{}, apperror.Validation(apperror.CodeInvalidInput,
			fmt.Sprintf("closed form needs constant product pools, got %s and %s", buy.Kind(), sell.Kind()))
	}

	bt, st := buy.Tokens(), sell.Tokens()
	qb, qs := indexOf(bt, quote), indexOf(st, quote)
	if qb < 0 || qs < 0 {
		return legs{}, apperror.Validation(apperror.CodeInvalidInput,
			fmt.Sprintf("quote %s is not in both pools", quote.Hex()))
	}
	base := bt[1-qb]
	if st[1-qs] != base {
		return legs{}, apperror.Validation(apperror.CodeInvalidInput,
			fmt.Sprintf("pools %s and %s trade different pairs", buy.ID().Hex(), sell.ID().Hex()))
	}

	br, sr := buy.Reserves(), sell.Reserves()
	return legs{
		buyQuote:  br[qb],
		buyBase:   br[1-qb],
		sellBase:  sr[1-qs],
		sellQuote: sr[qs],
		buyFee:    buy.Fee(),
		sellFee:   sell.Fee(),
		base:      base,
	}, nil
}

// CalculateOptimalTrade sizes the round trip quote -> buy -> base -> sell ->
// quote. It returns nil, nil when there is no opportunity: a zero reserve,
// no price gap after fees, or a net profit below the minimum. Pools that are
// not constant product or do not share the pair are rejected with an error.
func (e *Engine) CalculateOptimalTrade(buy, sell market.CFMM, quote common.Address, gas domain.GasQuote) (*domain.TradeResult, error) {
	l, err := orient(buy, sell, quote)
	if err != nil {
		return nil, err
	}
	if l.buyQuote.Sign() == 0 || l.buyBase.Sign() == 0 || l.sellBase.Sign() == 0 || l.sellQuote.Sign() == 0 {
		return nil, nil
	}

	d1 := new(big.Int).SetUint64(l.buyFee.Denominator)
	d2 := new(big.Int).SetUint64(l.sellFee.Denominator)
	g1 := new(big.Int).SetUint64(l.buyFee.Denominator - l.buyFee.Numerator)
	g2 := new(big.Int).SetUint64(l.sellFee.Denominator - l.sellFee.Numerator)

	// Profit exists iff g1 g2 Rb_base Rs_quote > D1 D2 Rb_quote Rs_base.
	d1d2 := new(big.Int).Mul(d1, d2)
	g1g2 := new(big.Int).Mul(g1, g2)
	lhs := mul(g1g2, l.buyBase, l.sellQuote)
	rhs := mul(d1d2, l.buyQuote, l.sellBase)
	if lhs.Cmp(rhs) <= 0 {
		return nil, nil
	}

	// x* = (isqrt(D1 D2 g1 g2 Rb_q Rb_b Rs_b Rs_q) - D1 D2 Rb_q Rs_b) / L
	// with L = g1 (D2 Rs_b + g2 Rb_b).
	radicand := mul(d1d2, g1g2, l.buyQuote, l.buyBase, l.sellBase, l.sellQuote)
	root, converged := fixedpoint.Sqrt(radicand)
	if !converged {
		e.logger.Warn(context.Background(), "integer square root did not converge",
			"buy_pool", buy.ID().Hex(), "sell_pool", sell.ID().Hex())
	}
	num := new(big.Int).Sub(root, rhs)
	if num.Sign() <= 0 {
		return nil, nil
	}
	den := new(big.Int).Mul(d2, l.sellBase)
	den.Add(den, new(big.Int).Mul(g2, l.buyBase))
	den.Mul(den, g1)
	x := num.Quo(num, den)

	clamped := false
	if limit := e.thresholds.MaxInput(l.buyQuote); x.Cmp(limit) > 0 {
		x = limit
		clamped = true
	}
	if x.Sign() <= 0 {
		return nil, nil
	}

	mid, out, err := roundTrip(x, l)
	if err != nil {
		return nil, apperror.New(apperror.CodeArithmeticOverflow,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("pools %s/%s", buy.ID().Hex(), sell.ID().Hex())))
	}
	if out.Cmp(x) <= 0 {
		return nil, nil
	}

	gross := new(big.Int).Sub(out, x)
	gasCost := gas.Cost(domain.SwapsPerRoute)
	net := new(big.Int).Sub(gross, gasCost)
	if net.Sign() <= 0 || net.Cmp(e.thresholds.MinProfit) < 0 {
		return nil, nil
	}

	pct, defined := domain.ProfitPercent(net, x)

	// Output shortfall against spot after fees:
	// ideal = x g1 g2 Rb_b Rs_q / (D1 D2 Rb_q Rs_b).
	idealNum := mul(x, lhs)
	shortfall := new(big.Int).Sub(idealNum, mul(out, rhs))

	reservesAt := buy.UpdatedAt()
	if u := sell.UpdatedAt(); u.Before(reservesAt) {
		reservesAt = u
	}

	return &domain.TradeResult{
		ID:                 uuid.New(),
		Source:             domain.SourceAnalytical,
		BuyPool:            buy.ID(),
		SellPool:           sell.ID(),
		BaseToken:          l.base,
		QuoteToken:         quote,
		InputAmount:        x,
		IntermediateAmount: mid,
		OutputAmount:       out,
		GrossProfit:        gross,
		GasUnits:           gas.Units(domain.SwapsPerRoute),
		GasPriceWei:        new(big.Int).Set(orZero(gas.PriceWei)),
		GasCost:            gasCost,
		NetProfit:          net,
		ProfitPct:          pct,
		ProfitPctDefined:   defined,
		SpreadBps:          spreadBps(l),
		PriceImpactPct:     domain.Percent(shortfall, idealNum),
		TradePct:           domain.Percent(x, l.buyQuote),
		Clamped:            clamped,
		ReservesAt:         reservesAt,
		DetectedAt:         e.now(),
	}, nil
}

// roundTrip applies the fee-adjusted constant product formula on both legs.
func roundTrip(x *big.Int, l legs) (mid, out *big.Int, err error) {
	vals := make([]*uint256.Int, 5)
	for i, b := range []*big.Int{x, l.buyQuote, l.buyBase, l.sellBase, l.sellQuote} {
		if vals[i], err = fixedpoint.FromBig(b); err != nil {
			return nil, nil, err
		}
	}

	m, err := market.AmountOut(vals[0], vals[1], vals[2], l.buyFee)
	if err != nil {
		return nil, nil, err
	}
	o, err := market.AmountOut(m, vals[3], vals[4], l.sellFee)
	if err != nil {
		return nil, nil, err
	}
	return m.ToBig(), o.ToBig(), nil
}

// spreadBps returns (sell spot / buy spot - 1) * 10000, spots in quote per base.
func spreadBps(l legs) decimal.Decimal {
	num := new(big.Int).Sub(mul(l.sellQuote, l.buyBase), mul(l.buyQuote, l.sellBase))
	den := mul(l.buyQuote, l.sellBase)
	return decimal.NewFromBigInt(num, 0).
		Mul(decimal.NewFromInt(10_000)).
		DivRound(decimal.NewFromBigInt(den, 0), 4)
}

// EvaluateMarkets runs CalculateOptimalTrade over every ordered pair of
// constant product pools sharing quote and a base token.
func (e *Engine) EvaluateMarkets(ctx context.Context, snap *market.Snapshot, quote common.Address, gas domain.GasQuote) ([]*domain.TradeResult, EvalStats) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "arbitrage.evaluate_markets",
		trace.WithAttributes(
			attribute.String("quote", quote.Hex()),
			attribute.Int64("block", int64(snap.Block)),
		),
	)
	defer span.End()

	var (
		stats   EvalStats
		results []*domain.TradeResult
	)

	for _, base := range snap.Counterparts(quote) {
		if ctx.Err() != nil {
			break
		}
		stats.Bases++

		var pools []market.CFMM
		for _, p := range snap.PoolsForPair(quote, base) {
			if p.Kind() == market.KindConstantProduct && len(p.Tokens()) == 2 {
				pools = append(pools, p)
			}
		}

		for i, buy := range pools {
			for j, sell := range pools {
				if i == j {
					continue
				}
				stats.Pairs++

				r, err := e.CalculateOptimalTrade(buy, sell, quote, gas)
				if err != nil {
					stats.Errors++
					e.logger.Warn(ctx, "pair evaluation failed",
						"buy_pool", buy.ID().Hex(),
						"sell_pool", sell.ID().Hex(),
						"error", err,
					)
					continue
				}
				if r == nil {
					continue
				}
				r.Block = snap.Block
				results = append(results, r)
			}
		}
	}
	stats.Opportunities = len(results)

	attrs := metric.WithAttributes(attribute.String("source", string(domain.SourceAnalytical)))
	e.metrics.pairs.Add(ctx, int64(stats.Pairs))
	e.metrics.opportunities.Add(ctx, int64(stats.Opportunities), attrs)
	e.metrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()))

	span.SetAttributes(
		attribute.Int("pairs", stats.Pairs),
		attribute.Int("opportunities", stats.Opportunities),
	)
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation cancelled")
	}

	return results, stats
}

// ErrNoGasConversion is returned when no pool links the quote token to the
// native token.
var ErrNoGasConversion = errors.New("no pool prices the native token in quote")

// GasQuoteFor prices gas in quote using the pool holding the most native
// token against it.
func GasQuoteFor(snap *market.Snapshot, quote, native common.Address, priceWei *big.Int, gasPerSwap uint64) (domain.GasQuote, error) {
	if quote == native {
		return domain.NewNativeGasQuote(priceWei, gasPerSwap), nil
	}

	var (
		best  market.CFMM
		depth *big.Int
	)
	for _, p := range snap.PoolsForPair(native, quote) {
		r := p.Reserves()[indexOf(p.Tokens(), native)]
		if depth == nil || r.Cmp(depth) > 0 {
			best, depth = p, r
		}
	}
	if best == nil {
		return domain.GasQuote{}, ErrNoGasConversion
	}

	rate := market.SpotPrices([]market.CFMM{best}, quote)[native]
	if !(rate > 0) {
		return domain.GasQuote{}, ErrNoGasConversion
	}
	return domain.GasQuote{
		PriceWei:    priceWei,
		GasPerSwap:  gasPerSwap,
		QuotePerWei: decimal.NewFromFloat(rate),
	}, nil
}

func indexOf(tokens []common.Address, t common.Address) int {
	for i, x := range tokens {
		if x == t {
			return i
		}
	}
	return -1
}

func mul(xs ...*big.Int) *big.Int {
	out := big.NewInt(1)
	for _, x := range xs {
		out.Mul(out, x)
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
