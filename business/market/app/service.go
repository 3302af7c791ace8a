package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apm"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	tracerName = "market"
	meterName  = "market"
)

// ServiceConfig configures the market service.
type ServiceConfig struct {
	// Concurrency bounds the per-pool reads in flight during a refresh.
	Concurrency int
}

// RefreshStats summarizes one refresh.
type RefreshStats struct {
	Pools     int
	Refreshed int
	Failed    map[common.Address]error
	Duration  time.Duration
}

type serviceMetrics struct {
	refreshes      metric.Int64Counter
	poolFailures   metric.Int64Counter
	invalidPools   metric.Int64Counter
	refreshLatency metric.Float64Histogram
	snapshotPools  metric.Int64Gauge
}

// MarketService owns the live pools. Refresh reads reserves concurrently and
// publishes an immutable snapshot; readers only ever see snapshots.
type MarketService struct {
	feed    MarketsFeed
	source  MarketDataSource
	factory *domain.Factory
	tokens  *asset.Registry
	config  ServiceConfig
	logger  logger.LoggerInterface

	mu    sync.RWMutex
	pools []domain.CFMM

	refreshMu sync.Mutex
	snapshot  atomic.Pointer[domain.Snapshot]
	now       func() time.Time

	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewMarketService creates a market service. A nil factory uses Uniswap V2
// fees; tokens may be nil.
func NewMarketService(
	feed MarketsFeed,
	source MarketDataSource,
	factory *domain.Factory,
	tokens *asset.Registry,
	cfg ServiceConfig,
	log logger.LoggerInterface,
) (*MarketService, error) {
	if feed == nil || source == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("market service needs a markets feed and a data source"))
	}
	if factory == nil {
		factory = domain.NewFactory(domain.FeeUniswapV2, domain.DefaultMaxTradeFraction)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	s := &MarketService{
		feed:    feed,
		source:  source,
		factory: factory,
		tokens:  tokens,
		config:  cfg,
		logger:  log,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return s, nil
}

func (s *MarketService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serviceMetrics{}

	s.metrics.refreshes, err = meter.Int64Counter(
		"market_refreshes_total",
		metric.WithDescription("Reserve refresh cycles"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return err
	}

	s.metrics.poolFailures, err = meter.Int64Counter(
		"market_pool_read_failures_total",
		metric.WithDescription("Pools excluded from a snapshot because their reserves could not be read"),
		metric.WithUnit("{pool}"),
	)
	if err != nil {
		return err
	}

	s.metrics.invalidPools, err = meter.Int64Counter(
		"market_invalid_pools_total",
		metric.WithDescription("Pool definitions rejected by validation"),
		metric.WithUnit("{pool}"),
	)
	if err != nil {
		return err
	}

	s.metrics.refreshLatency, err = meter.Float64Histogram(
		"market_refresh_latency_ms",
		metric.WithDescription("Reserve refresh latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.snapshotPools, err = meter.Int64Gauge(
		"market_snapshot_pools",
		metric.WithDescription("Pools in the latest snapshot"),
		metric.WithUnit("{pool}"),
	)
	return err
}

// LoadMarkets builds the live pool set from the markets feed. Invalid pool
// definitions are logged and skipped; duplicates keep the first definition.
func (s *MarketService) LoadMarkets(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "market.load")
	defer span.End()

	specs, err := s.feed.Markets(ctx)
	if err != nil {
		apm.NoticeError(span, err)
		return 0, apperror.Wrap(err, apperror.CodeMarketsFeedFailed, "load markets")
	}

	if catalog, ok := s.feed.(TokenCatalog); ok && s.tokens != nil {
		for _, t := range catalog.Tokens() {
			s.tokens.Register(t)
		}
	}

	pools := make([]domain.CFMM, 0, len(specs))
	seen := make(map[common.Address]struct{}, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec.ID]; dup {
			s.logger.Warn(ctx, "duplicate pool definition ignored", "pool", spec.ID.Hex())
			continue
		}

		p, err := s.factory.Build(spec)
		if err != nil {
			s.metrics.invalidPools.Add(ctx, 1)
			s.logger.Warn(ctx, "invalid pool definition skipped", "pool", spec.ID.Hex(), "error", err)
			continue
		}
		seen[spec.ID] = struct{}{}
		pools = append(pools, p)
	}

	if len(pools) == 0 {
		err := apperror.New(apperror.CodeMarketDataUnavailable,
			apperror.WithContext(fmt.Sprintf("none of %d pool definitions is usable", len(specs))))
		apm.NoticeError(span, err)
		return 0, err
	}

	s.mu.Lock()
	s.pools = pools
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("pools", len(pools)))
	s.logger.Info(ctx, "markets loaded", "pools", len(pools), "definitions", len(specs))

	return len(pools), nil
}

// Pools returns the live pools.
func (s *MarketService) Pools() []domain.CFMM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CFMM, len(s.pools))
	copy(out, s.pools)
	return out
}

// Snapshot returns the latest published snapshot, nil before the first
// successful refresh.
func (s *MarketService) Snapshot() *domain.Snapshot {
	return s.snapshot.Load()
}

// Refresh reads reserves for every live pool and publishes a snapshot of
// the pools that were read successfully. Pools that fail are excluded, so
// downstream consumers never trade on reserves that could not be
// confirmed. Refresh fails only when no pool could be read.
func (s *MarketService) Refresh(ctx context.Context, block uint64) (*domain.Snapshot, RefreshStats, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "market.refresh",
		trace.WithAttributes(attribute.Int64("block", int64(block))))
	defer span.End()

	start := time.Now()
	pools := s.Pools()
	stats := RefreshStats{Pools: len(pools), Failed: make(map[common.Address]error)}

	if len(pools) == 0 {
		err := apperror.New(apperror.CodeMarketDataUnavailable, apperror.WithContext("no markets loaded"))
		apm.NoticeError(span, err)
		return nil, stats, err
	}

	s.metrics.refreshes.Add(ctx, 1)

	var errs []error
	if batch, ok := s.source.(BatchReserveReader); ok {
		errs = s.refreshBatch(ctx, batch, pools)
	} else {
		errs = s.refreshEach(ctx, pools)
	}

	if err := ctx.Err(); err != nil {
		apm.NoticeError(span, err)
		return nil, stats, err
	}

	live := make([]domain.CFMM, 0, len(pools))
	var firstErr error
	for i, p := range pools {
		if errs[i] != nil {
			stats.Failed[p.ID()] = errs[i]
			if firstErr == nil {
				firstErr = errs[i]
			}
			s.metrics.poolFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", p.Kind().String())))
			s.logger.Warn(ctx, "pool excluded from snapshot", "pool", p.ID().Hex(), "error", errs[i])
			continue
		}
		live = append(live, p)
	}
	stats.Refreshed = len(live)
	stats.Duration = time.Since(start)
	s.metrics.refreshLatency.Record(ctx, float64(stats.Duration.Milliseconds()))

	if len(live) == 0 {
		err := apperror.New(apperror.CodeMarketDataUnavailable,
			apperror.WithCause(firstErr),
			apperror.WithContext(fmt.Sprintf("all %d pools failed to refresh", len(pools))))
		apm.NoticeError(span, err)
		return nil, stats, err
	}

	snap := domain.NewSnapshot(live, block, s.now())
	s.snapshot.Store(snap)

	s.metrics.snapshotPools.Record(ctx, int64(snap.Len()))
	span.SetAttributes(
		attribute.Int("pools.refreshed", stats.Refreshed),
		attribute.Int("pools.failed", len(stats.Failed)),
	)
	span.SetStatus(codes.Ok, "refreshed")

	s.logger.Debug(ctx, "snapshot published",
		"block", block,
		"pools", stats.Refreshed,
		"failed", len(stats.Failed),
		"duration_ms", stats.Duration.Milliseconds(),
	)

	return snap, stats, nil
}

func (s *MarketService) refreshEach(ctx context.Context, pools []domain.CFMM) []error {
	errs := make([]error, len(pools))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, p := range pools {
		g.Go(func() error {
			if err := p.UpdateReserves(ctx, s.source); err != nil {
				errs[i] = poolError(p.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func (s *MarketService) refreshBatch(ctx context.Context, batch BatchReserveReader, pools []domain.CFMM) []error {
	errs := make([]error, len(pools))

	refs := make([]domain.PoolRef, len(pools))
	for i, p := range pools {
		refs[i] = domain.PoolRef{ID: p.ID(), Kind: p.Kind(), Tokens: p.Tokens()}
	}

	results, err := batch.ReadReservesBatch(ctx, refs)
	if err == nil && len(results) != len(pools) {
		err = fmt.Errorf("batch returned %d results for %d pools", len(results), len(pools))
	}
	if err != nil {
		for i, p := range pools {
			errs[i] = poolError(p.ID(), err)
		}
		return errs
	}

	for i, p := range pools {
		r := results[i]
		if r.Err != nil {
			errs[i] = poolError(p.ID(), r.Err)
			continue
		}
		if err := p.UpdateReserves(ctx, fixedReserves(r.Reserves)); err != nil {
			errs[i] = poolError(p.ID(), err)
		}
	}

	return errs
}

// fixedReserves replays reserves already read by a batch.
type fixedReserves []*big.Int

func (f fixedReserves) ReadReserves(context.Context, domain.PoolRef) ([]*big.Int, error) {
	return f, nil
}

func poolError(pool common.Address, err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.Wrap(err, apperror.CodePoolQueryFailed, pool.Hex())
}
