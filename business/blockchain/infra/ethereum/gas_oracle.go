package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/cache"
	"github.com/fd1az/cfmm-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	gasSourceRPC       = "rpc"
	gasSourceFeeMarket = "rpc-1559"
	quoteKey           = "quote"
)

// GasPriceSuggester is the legacy eth_gasPrice call.
type GasPriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// FeeMarketReader is implemented by clients that also expose the London fee
// market. *ethclient.Client satisfies it.
type FeeMarketReader interface {
	GasPriceSuggester
	HeaderReader
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// GasOracleConfig holds configuration for the gas oracle.
type GasOracleConfig struct {
	CacheTTL    time.Duration
	MaxGasPrice *big.Int // quotes above are clamped; nil disables
	// FeeMarket prices gas as projected base fee plus suggested tip when the
	// client supports it. Pre-London heads fall back to eth_gasPrice.
	FeeMarket bool
}

func DefaultGasOracleConfig() GasOracleConfig {
	return GasOracleConfig{
		CacheTTL:    12 * time.Second, // one slot
		MaxGasPrice: domain.GweiToWei(500),
		FeeMarket:   true,
	}
}

type quote struct {
	wei    *big.Int
	source string
}

// GasOracle quotes the price a swap pays per unit of gas in the next block.
// Upstream calls go through a breaker and are cached for CacheTTL.
type GasOracle struct {
	config    GasOracleConfig
	logger    logger.LoggerInterface
	legacy    GasPriceSuggester
	feeMarket FeeMarketReader // nil when unsupported or disabled

	priceCache *cache.Cache[string, *domain.GasPrice]
	cb         *circuitbreaker.CircuitBreaker[quote]
	now        func() time.Time

	tracer  trace.Tracer
	fetches metric.Int64Counter
	gwei    metric.Float64Gauge
	clamped metric.Int64Counter
}

func NewGasOracle(client GasPriceSuggester, cfg GasOracleConfig, log logger.LoggerInterface) (*GasOracle, error) {
	if client == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("rpc gas oracle requires an ethereum client"))
	}

	g := &GasOracle{
		config:     cfg,
		logger:     log,
		legacy:     client,
		priceCache: cache.New[string, *domain.GasPrice](5 * time.Minute),
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	if fm, ok := client.(FeeMarketReader); ok && cfg.FeeMarket {
		g.feeMarket = fm
	}

	meter := otel.Meter(meterName)
	var err error
	if g.fetches, err = meter.Int64Counter("gas_price_fetches_total",
		metric.WithDescription("Upstream gas quotes by source and outcome"),
		metric.WithUnit("{fetch}")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if g.gwei, err = meter.Float64Gauge("gas_price_gwei",
		metric.WithDescription("Last quoted gas price"),
		metric.WithUnit("gwei")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if g.clamped, err = meter.Int64Counter("gas_price_clamped_total",
		metric.WithDescription("Quotes clamped to the configured maximum"),
		metric.WithUnit("{quote}")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("gas-oracle-rpc")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	g.cb = circuitbreaker.New[quote](cbCfg)

	return g, nil
}

// GasPrice returns the cached quote or fetches a fresh one.
func (g *GasOracle) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := g.tracer.Start(ctx, "gas.get_price")
	defer span.End()

	if price, ok := g.priceCache.Get(ctx, quoteKey); ok {
		span.AddEvent("cache_hit")
		return price, nil
	}

	q, err := g.cb.Execute(func() (quote, error) { return g.fetch(ctx) })
	if err != nil {
		g.fetches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", false)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "gas quote")
	}
	g.fetches.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", true),
		attribute.String("source", q.source)))

	if ceiling := g.config.MaxGasPrice; ceiling != nil && q.wei.Cmp(ceiling) > 0 {
		g.logger.Warn(ctx, "gas price exceeds max, clamping", "wei", q.wei.String(), "max", ceiling.String())
		g.clamped.Add(ctx, 1)
		q.wei = ceiling
	}

	price := domain.NewGasPrice(q.wei, q.source, g.now())
	g.priceCache.Set(ctx, quoteKey, price, g.config.CacheTTL)

	g.gwei.Record(ctx, price.Gwei())
	span.SetAttributes(attribute.Float64("gwei", price.Gwei()), attribute.String("source", q.source))
	span.SetStatus(codes.Ok, "fetched")
	return price, nil
}

func (g *GasOracle) fetch(ctx context.Context) (quote, error) {
	if g.feeMarket != nil {
		wei, err := g.fromFeeMarket(ctx)
		if err != nil {
			return quote{}, err
		}
		if wei != nil {
			return quote{wei: wei, source: gasSourceFeeMarket}, nil
		}
	}

	wei, err := g.legacy.SuggestGasPrice(ctx)
	if err != nil {
		return quote{}, err
	}
	return quote{wei: wei, source: gasSourceRPC}, nil
}

// fromFeeMarket returns nil, nil when the head carries no base fee.
func (g *GasOracle) fromFeeMarket(ctx context.Context) (*big.Int, error) {
	header, err := g.feeMarket.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	base := headerToBlock(header).NextBaseFee()
	if base == nil {
		return nil, nil
	}

	tip, err := g.feeMarket.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	return base.Add(base, tip), nil
}

// Close releases the cache janitor.
func (g *GasOracle) Close() error {
	g.priceCache.Close()
	return nil
}
