package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	chain "github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	marketApp "github.com/fd1az/cfmm-arbitrage/business/market/app"
	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	optimizer "github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apm"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

// ErrScanInProgress is returned when a scan is triggered while another one
// is still running.
var ErrScanInProgress = errors.New("scan already in progress")

// DetectorConfig holds configuration for the arbitrage detector.
type DetectorConfig struct {
	QuoteTokens []common.Address
	// Native is the token gas is paid in.
	Native         common.Address
	ScanInterval   time.Duration
	BlockTriggered bool
	// TopN caps the published opportunities. Zero publishes all.
	TopN       int
	GasPerSwap uint64
	// Kappa scales the optimizer's depth penalty.
	Kappa float64
}

// ScanReport is the outcome of one scan.
type ScanReport struct {
	Block         uint64
	Refresh       marketApp.RefreshStats
	GasPriceWei   *big.Int
	Stats         EvalStats
	Candidates    int
	Opportunities []*domain.TradeResult
	Routes        []*domain.Route
	// Rejections is the filter's running total per reason.
	Rejections map[domain.RejectReason]int64
	Duration   time.Duration
}

type detectorMetrics struct {
	scans    metric.Int64Counter
	skipped  metric.Int64Counter
	routes   metric.Int64Counter
	duration metric.Float64Histogram
}

// Detector orchestrates arbitrage detection: refresh, evaluate, filter,
// rank and publish.
type Detector struct {
	markets   MarketSource
	gas       GasPriceSource
	blocks    BlockSource
	engine    *Engine
	filter    *Filter
	optimizer RouteOptimizer
	sinks     []OpportunitySink
	config    DetectorConfig
	logger    logger.LoggerInterface
	now       func() time.Time

	busy   atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates a new arbitrage Detector. blocks and opt may be nil.
func NewDetector(
	markets MarketSource,
	gas GasPriceSource,
	blocks BlockSource,
	engine *Engine,
	filter *Filter,
	opt RouteOptimizer,
	sinks []OpportunitySink,
	config DetectorConfig,
	log logger.LoggerInterface,
) (*Detector, error) {
	if markets == nil || gas == nil || engine == nil || filter == nil {
		return nil, apperror.Validation(apperror.CodeConfigurationError, "detector needs markets, gas, engine and filter")
	}
	if len(config.QuoteTokens) == 0 {
		return nil, apperror.Validation(apperror.CodeConfigurationError, "detector needs at least one quote token")
	}
	if config.TopN < 0 {
		return nil, apperror.Validation(apperror.CodeConfigurationError, "top n must not be negative")
	}
	if opt != nil && !(config.Kappa > 0) {
		return nil, apperror.Validation(apperror.CodeConfigurationError, "optimizer kappa must be positive")
	}

	d := &Detector{
		markets:   markets,
		gas:       gas,
		blocks:    blocks,
		engine:    engine,
		filter:    filter,
		optimizer: opt,
		sinks:     sinks,
		config:    config,
		logger:    log,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	m := &detectorMetrics{}

	m.scans, err = meter.Int64Counter(
		"arbitrage_scans_total",
		metric.WithDescription("Completed scans by outcome"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	m.skipped, err = meter.Int64Counter(
		"arbitrage_scans_skipped_total",
		metric.WithDescription("Triggers dropped while a scan was running"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	m.routes, err = meter.Int64Counter(
		"arbitrage_routes_total",
		metric.WithDescription("Multi-pool routes found by the optimizer"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"arbitrage_scan_duration_ms",
		metric.WithDescription("Scan latency including refresh"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	d.metrics = m
	return nil
}

// Start starts the sinks and the detection loop. Scans run on every new
// block when block triggered and on every ScanInterval tick.
func (d *Detector) Start(ctx context.Context) error {
	d.logger.Info(ctx, "starting arbitrage detector",
		"quote_tokens", len(d.config.QuoteTokens),
		"block_triggered", d.config.BlockTriggered,
		"scan_interval", d.config.ScanInterval,
		"optimizer", d.optimizer != nil,
	)

	if !(d.config.BlockTriggered && d.blocks != nil) && d.config.ScanInterval <= 0 {
		return apperror.Validation(apperror.CodeConfigurationError, "detector has neither a block feed nor a scan interval")
	}

	for i, s := range d.sinks {
		if err := s.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start sink %T: %w", s, err), stopSinks(d.sinks[:i]))
		}
	}

	var blocks <-chan *chain.Block
	if d.config.BlockTriggered && d.blocks != nil {
		ch, err := d.blocks.SubscribeBlocks(ctx)
		if err != nil {
			return errors.Join(err, stopSinks(d.sinks))
		}
		blocks = ch
	}
	if blocks == nil && d.config.ScanInterval <= 0 {
		return errors.Join(
			apperror.Validation(apperror.CodeConfigurationError, "block feed returned no channel and there is no scan interval"),
			stopSinks(d.sinks))
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx, blocks)

	return nil
}

func (d *Detector) run(ctx context.Context, blocks <-chan *chain.Block) {
	defer d.wg.Done()

	var tick <-chan time.Time
	if d.config.ScanInterval > 0 {
		ticker := time.NewTicker(d.config.ScanInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last uint64
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "detector stopping", "reason", ctx.Err())
			return
		case block, ok := <-blocks:
			if !ok {
				d.logger.Warn(ctx, "block feed closed, falling back to interval scans")
				blocks = nil
				continue
			}
			if block != nil {
				last = block.Number
				d.trigger(ctx, block.Number)
			}
		case <-tick:
			d.trigger(ctx, last)
		}
	}
}

// trigger starts a scan unless one is running.
func (d *Detector) trigger(ctx context.Context, block uint64) {
	if d.busy.Load() {
		d.metrics.skipped.Add(ctx, 1)
		d.logger.Debug(ctx, "scan skipped, previous still running", "block", block)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, err := d.Scan(ctx, block)
		switch {
		case err == nil, errors.Is(err, ErrScanInProgress), ctx.Err() != nil:
		case apperror.IsExternal(err):
			// Upstream hiccup; the next trigger retries.
			d.logger.Warn(ctx, "scan failed", "block", block, "error", err)
		default:
			d.logger.Error(ctx, "scan failed", "block", block, "error", err)
		}
	}()
}

// Scan runs one detection pass over a fresh snapshot. Only one scan runs
// at a time; a concurrent call returns ErrScanInProgress.
func (d *Detector) Scan(ctx context.Context, block uint64) (*ScanReport, error) {
	if !d.busy.CompareAndSwap(false, true) {
		d.metrics.skipped.Add(ctx, 1)
		return nil, ErrScanInProgress
	}
	defer d.busy.Store(false)

	start := d.now()
	ctx, span := d.tracer.Start(ctx, "arbitrage.scan",
		trace.WithAttributes(attribute.Int64("block", int64(block))),
	)
	defer span.End()

	report, err := d.scan(ctx, block)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		apm.NoticeError(span, err)
		d.observe(func(o ScanObserver) { o.OnScanError(ctx, block, err) })
	} else {
		report.Duration = d.now().Sub(start)
		d.observe(func(o ScanObserver) { o.OnScan(ctx, report) })
		span.SetAttributes(
			attribute.Int("opportunities", len(report.Opportunities)),
			attribute.Int("routes", len(report.Routes)),
		)
		span.SetStatus(codes.Ok, "")
	}

	d.metrics.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	d.metrics.duration.Record(ctx, float64(d.now().Sub(start).Microseconds())/1000)
	return report, err
}

func (d *Detector) scan(ctx context.Context, block uint64) (*ScanReport, error) {
	snap, refresh, err := d.markets.Refresh(ctx, block)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMarketDataUnavailable, "refresh markets")
	}
	if len(refresh.Failed) > 0 {
		d.logger.Warn(ctx, "some pools failed to refresh", "failed", len(refresh.Failed), "pools", refresh.Pools)
	}

	gas, err := d.gas.GasPrice(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGasOracleFailed, "gas price")
	}
	if gas == nil || gas.Wei == nil {
		return nil, apperror.New(apperror.CodeGasOracleFailed, apperror.WithContext("gas oracle returned no price"))
	}

	report := &ScanReport{
		Block:       snap.Block,
		Refresh:     refresh,
		GasPriceWei: new(big.Int).Set(gas.Wei),
	}

	var candidates []*domain.TradeResult
	for _, quote := range d.config.QuoteTokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gq, err := GasQuoteFor(snap, quote, d.config.Native, gas.Wei, d.config.GasPerSwap)
		if err != nil {
			d.logger.Warn(ctx, "cannot price gas in quote, skipping", "quote", quote.Hex(), "error", err)
			continue
		}

		results, stats := d.engine.EvaluateMarkets(ctx, snap, quote, gq)
		candidates = append(candidates, results...)
		report.Stats.Bases += stats.Bases
		report.Stats.Pairs += stats.Pairs
		report.Stats.Opportunities += stats.Opportunities
		report.Stats.Errors += stats.Errors

		if d.optimizer != nil {
			route, err := d.route(ctx, snap, quote)
			if err != nil {
				d.logger.Warn(ctx, "optimizer pass failed", "quote", quote.Hex(), "error", err)
			} else if route != nil {
				report.Routes = append(report.Routes, route)
				d.metrics.routes.Add(ctx, 1)
			}
		}
	}

	report.Candidates = len(candidates)
	ranked := d.filter.Apply(ctx, candidates, gas.Wei, d.now())
	if d.config.TopN > 0 && len(ranked) > d.config.TopN {
		ranked = ranked[:d.config.TopN]
	}
	report.Opportunities = ranked
	report.Rejections = d.filter.Rejections()

	d.publish(ctx, report)

	d.logger.Debug(ctx, "scan complete",
		"block", report.Block,
		"pairs", report.Stats.Pairs,
		"candidates", report.Candidates,
		"opportunities", len(report.Opportunities),
		"routes", len(report.Routes),
	)
	return report, nil
}

// route runs the optimizer over every pool priced from quote and returns
// the resulting route, or nil when it moves nothing of value.
func (d *Detector) route(ctx context.Context, snap *market.Snapshot, quote common.Address) (*domain.Route, error) {
	ref := market.SpotPrices(snap.Pools(), quote)

	var pools []market.CFMM
	for _, p := range snap.Pools() {
		if priced(p, ref) && funded(p) {
			pools = append(pools, p)
		}
	}
	if len(pools) < 2 {
		return nil, nil
	}

	network, err := market.NewNetwork(pools)
	if err != nil {
		return nil, err
	}
	problem := optimizer.FromNetwork(network)

	prices := make([]float64, network.NumTokens())
	for i, t := range network.Tokens() {
		prices[i] = ref[t]
	}

	utility, err := optimizer.NewRegularizedArbitrage(prices, problem.Depths, d.config.Kappa)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "optimizer utility")
	}

	res, err := d.optimizer.Optimize(ctx, problem, utility, prices)
	if err != nil {
		return nil, err
	}

	active := res.ActiveTrades()
	if len(active) == 0 {
		return nil, nil
	}

	var value float64
	for j, v := range res.NetTrade {
		value += prices[j] * v
	}
	if !(value > 0) || math.IsInf(value, 0) {
		return nil, nil
	}

	route := &domain.Route{
		ID:           uuid.New(),
		QuoteToken:   quote,
		Tokens:       res.Tokens,
		Prices:       res.Prices,
		NetTrade:     res.NetTrade,
		ValueQuote:   value,
		Converged:    res.Converged,
		Reason:       string(res.Reason),
		Iterations:   res.Iterations,
		GradientNorm: res.GradientNorm,
		Block:        snap.Block,
		DetectedAt:   d.now(),
	}
	for _, t := range active {
		p, _ := snap.Pool(t.Pool)
		route.Legs = append(route.Legs, domain.RouteLeg{Pool: t.Pool, Tokens: p.Tokens(), Delta: t.Delta})
	}
	return route, nil
}

func (d *Detector) publish(ctx context.Context, report *ScanReport) {
	for _, s := range d.sinks {
		if len(report.Opportunities) > 0 {
			if err := s.Publish(ctx, report.Opportunities); err != nil {
				d.logger.Warn(ctx, "sink publish failed", "sink", fmt.Sprintf("%T", s),
					"error", apperror.Wrap(err, apperror.CodeSinkPublishFailed, "publish opportunities"))
			}
		}

		rs, ok := s.(RouteSink)
		if !ok {
			continue
		}
		for _, r := range report.Routes {
			if err := rs.PublishRoute(ctx, r); err != nil {
				d.logger.Warn(ctx, "sink route publish failed", "sink", fmt.Sprintf("%T", s),
					"error", apperror.Wrap(err, apperror.CodeSinkPublishFailed, "publish route"))
			}
		}
	}
}

func (d *Detector) observe(fn func(ScanObserver)) {
	for _, s := range d.sinks {
		if o, ok := s.(ScanObserver); ok {
			fn(o)
		}
	}
}

// Stop stops the loop, waits for an in-flight scan and stops the sinks.
func (d *Detector) Stop() error {
	d.logger.Info(context.Background(), "stopping arbitrage detector")

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return stopSinks(d.sinks)
}

// stopSinks stops every sink, collecting all errors.
func stopSinks(sinks []OpportunitySink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func priced(p market.CFMM, prices map[common.Address]float64) bool {
	for _, t := range p.Tokens() {
		if _, ok := prices[t]; !ok {
			return false
		}
	}
	return true
}

func funded(p market.CFMM) bool {
	for _, r := range p.Reserves() {
		if r.Sign() <= 0 {
			return false
		}
	}
	return true
}
