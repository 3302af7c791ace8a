// Package gasstation quotes gas prices from an HTTP gas station API.
package gasstation

import (
	"context"
	"fmt"
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
	"github.com/fd1az/cfmm-arbitrage/internal/httpclient"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	tracerName = "github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/gasstation"
	meterName  = "github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/gasstation"
	source     = "station"
)

// response accepts the common gas station shapes: a flat {"fast": gwei}
// document or one nested under "result".
type response struct {
	Fast     float64 `json:"fast"`
	Standard float64 `json:"standard"`
	Result   *struct {
		FastGasPrice    string `json:"FastGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
	} `json:"result"`
}

func (r response) gwei() (float64, error) {
	if r.Fast > 0 {
		return r.Fast, nil
	}
	if r.Standard > 0 {
		return r.Standard, nil
	}
	if r.Result != nil {
		for _, s := range []string{r.Result.FastGasPrice, r.Result.ProposeGasPrice} {
			var v float64
			if _, err := fmt.Sscanf(s, "%g", &v); err == nil && v > 0 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("no gas price in response")
}

// Config holds configuration for the gas station oracle.
type Config struct {
	URL         string
	CacheTTL    time.Duration
	MaxGasPrice float64 // gwei; quotes above are clamped
}

// Oracle implements app.GasOracle over HTTP.
type Oracle struct {
	cfg    Config
	client httpclient.Client
	logger logger.LoggerInterface

	priceCache *cache.Cache[string, *domain.GasPrice]
	cb         *circuitbreaker.CircuitBreaker[float64]
	now        func() time.Time

	tracer  trace.Tracer
	fetches metric.Int64Counter
}

// New creates a gas station oracle.
func New(cfg Config, client httpclient.Client, log logger.LoggerInterface) (*Oracle, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("gas station url is required"))
	}

	fetches, err := otel.Meter(meterName).Int64Counter(
		"gas_station_fetches_total",
		metric.WithDescription("Gas station requests by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	cbCfg := circuitbreaker.DefaultConfig("gas-station")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &Oracle{
		cfg:        cfg,
		client:     client,
		logger:     log,
		priceCache: cache.New[string, *domain.GasPrice](time.Minute),
		cb:         circuitbreaker.New[float64](cbCfg),
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
		fetches:    fetches,
	}, nil
}

// GasPrice returns the station's fast gas price.
func (o *Oracle) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := o.tracer.Start(ctx, "gasstation.get_price")
	defer span.End()

	if price, ok := o.priceCache.Get(ctx, source); ok {
		span.AddEvent("cache_hit")
		return price, nil
	}

	gwei, err := o.cb.Execute(func() (float64, error) {
		var resp response
		if err := o.client.GetJSON(ctx, o.cfg.URL, nil, &resp); err != nil {
			return 0, err
		}
		return resp.gwei()
	})
	if err != nil {
		o.fetches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", false)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeGasOracleFailed, "gas station")
	}
	o.fetches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", true)))

	if o.cfg.MaxGasPrice > 0 && gwei > o.cfg.MaxGasPrice {
		o.logger.Warn(ctx, "gas price exceeds max, clamping", "gwei", gwei, "max", o.cfg.MaxGasPrice)
		gwei = o.cfg.MaxGasPrice
	}

	price := domain.NewGasPrice(domain.GweiToWei(gwei), source, o.now())
	o.priceCache.Set(ctx, source, price, o.cfg.CacheTTL)

	span.SetAttributes(attribute.Float64("gwei", gwei))
	return price, nil
}

// Close releases the cache janitor.
func (o *Oracle) Close() error {
	o.priceCache.Close()
	return nil
}
