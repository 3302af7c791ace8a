package app

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

// Filter drops candidates outside the thresholds and ranks the rest.
type Filter struct {
	thresholds domain.Thresholds
	logger     logger.LoggerInterface

	mu         sync.Mutex
	rejections map[domain.RejectReason]int64

	rejected metric.Int64Counter
	accepted metric.Int64Counter
}

// NewFilter validates thresholds and creates a Filter.
func NewFilter(thresholds domain.Thresholds, log logger.LoggerInterface) (*Filter, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	meter := otel.Meter(meterName)
	rejected, err := meter.Int64Counter(
		"arbitrage_rejections_total",
		metric.WithDescription("Candidates rejected by filter reason"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	accepted, err := meter.Int64Counter(
		"arbitrage_opportunities_total",
		metric.WithDescription("Candidates that passed every filter"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &Filter{
		thresholds: thresholds,
		logger:     log,
		rejections: make(map[domain.RejectReason]int64),
		rejected:   rejected,
		accepted:   accepted,
	}, nil
}

// Check returns the first reason r fails, in domain.RejectReasons order.
func (f *Filter) Check(r *domain.TradeResult, gasPrice *big.Int, now time.Time) (domain.RejectReason, bool) {
	th := f.thresholds

	switch {
	case r.NetProfit == nil || r.NetProfit.Sign() <= 0:
		return domain.RejectNonPositiveProfit, false
	case r.NetProfit.Cmp(th.MinProfit) < 0:
		return domain.RejectBelowMinProfit, false
	case th.MinSpreadBps.IsPositive() && r.SpreadBps.LessThan(th.MinSpreadBps):
		return domain.RejectBelowMinSpread, false
	case th.MaxGasPrice != nil && th.MaxGasPrice.Sign() > 0 && gasPrice != nil && gasPrice.Cmp(th.MaxGasPrice) > 0:
		return domain.RejectGasPriceTooHigh, false
	case th.MaxSlippagePct.IsPositive() && r.PriceImpactPct.GreaterThan(th.MaxSlippagePct):
		return domain.RejectSlippageExceeded, false
	case r.TradePct.GreaterThan(th.MaxTradePct):
		return domain.RejectTradeTooLarge, false
	case th.MaxReserveAge > 0 && now.Sub(r.ReservesAt) > th.MaxReserveAge:
		return domain.RejectStaleReserves, false
	}
	return "", true
}

// Apply filters candidates and sorts the survivors by net profit
// descending, then profit percent descending, then id.
func (f *Filter) Apply(ctx context.Context, candidates []*domain.TradeResult, gasPrice *big.Int, now time.Time) []*domain.TradeResult {
	var (
		kept   []*domain.TradeResult
		counts = make(map[domain.RejectReason]int64)
	)

	for _, r := range candidates {
		reason, ok := f.Check(r, gasPrice, now)
		if !ok {
			counts[reason]++
			continue
		}
		kept = append(kept, r)
	}

	f.mu.Lock()
	for reason, n := range counts {
		f.rejections[reason] += n
	}
	f.mu.Unlock()

	for reason, n := range counts {
		f.rejected.Add(ctx, n, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
	f.accepted.Add(ctx, int64(len(kept)))

	if len(counts) > 0 {
		f.logger.Debug(ctx, "candidates rejected", "kept", len(kept), "rejected", counts)
	}

	Rank(kept)
	return kept
}

// Rank sorts results by net profit descending, then profit percent
// descending, then id ascending.
func Rank(results []*domain.TradeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if c := a.NetProfit.Cmp(b.NetProfit); c != 0 {
			return c > 0
		}
		if c := a.ProfitPct.Cmp(b.ProfitPct); c != 0 {
			return c > 0
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// Rejections returns the cumulative rejection counts per reason.
func (f *Filter) Rejections() map[domain.RejectReason]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[domain.RejectReason]int64, len(f.rejections))
	for k, v := range f.rejections {
		out[k] = v
	}
	return out
}
