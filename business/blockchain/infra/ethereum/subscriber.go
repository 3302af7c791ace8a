// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

const (
	tracerName = "github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/cfmm-arbitrage/business/blockchain/infra/ethereum"
)

// HeaderReader is the subset of *ethclient.Client used for HTTP polling.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// SubscriberConfig holds configuration for the Ethereum subscriber.
type SubscriberConfig struct {
	WSURL          string        // WebSocket endpoint (primary, optional)
	PollInterval   time.Duration // Polling interval for HTTP fallback
	ReconnectDelay time.Duration // Delay before retrying WS
	BufferSize     int           // Block channel buffer size
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:          wsURL,
		PollInterval:   12 * time.Second, // ~1 block time
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

type subscriberMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Subscriber streams new heads over WebSocket and falls back to polling the
// HTTP client when the socket is unavailable.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface
	http   HeaderReader

	state     atomic.Value // domain.ConnectionState
	lastBlock atomic.Uint64
	started   atomic.Bool

	closeOnce sync.Once
	done      chan struct{}

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewSubscriber creates a new Ethereum block subscriber. http may be nil when
// only WebSocket is configured.
func NewSubscriber(cfg SubscriberConfig, http HeaderReader, log logger.LoggerInterface) (*Subscriber, error) {
	if cfg.WSURL == "" && http == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("block subscriber needs a websocket url or an http client"))
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	s := &Subscriber{
		config: cfg,
		logger: log,
		http:   http,
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}
	s.state.Store(domain.StateDisconnected)

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	httpCfg := circuitbreaker.DefaultConfig("eth-http-heads")
	httpCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.httpCB = circuitbreaker.New[*types.Header](httpCfg)

	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Total Ethereum blocks received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total Ethereum subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blockLatency, err = meter.Float64Histogram(
		"eth_block_latency_ms",
		metric.WithDescription("Latency from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times HTTP fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// Subscribe starts listening for new blocks. It may be called once.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithContext("already subscribed"))
	}

	blocks := make(chan *domain.Block, s.config.BufferSize)
	s.setState(domain.StateConnecting)

	go func() {
		defer close(blocks)
		defer s.setState(domain.StateDisconnected)
		s.run(ctx, blocks)
	}()

	return blocks, nil
}

// run alternates between a WS subscription and HTTP polling until ctx ends.
func (s *Subscriber) run(ctx context.Context, blocks chan<- *domain.Block) {
	for {
		if s.config.WSURL != "" {
			err := s.runWS(ctx, blocks)
			if s.stopped(ctx) {
				return
			}
			s.logger.Warn(ctx, "ws head subscription ended", "error", err)
			s.metrics.subscribeErrors.Add(ctx, 1)
		}

		if s.http == nil {
			s.setState(domain.StateReconnecting)
			if !s.sleep(ctx, s.config.ReconnectDelay) {
				return
			}
			continue
		}

		if s.config.WSURL != "" {
			s.metrics.httpFallbackUsed.Add(ctx, 1)
		}

		// Poll for a while, then give the socket another chance.
		window := s.config.ReconnectDelay * 10
		if s.config.WSURL == "" {
			window = 0
		}
		s.runHTTPPoller(ctx, blocks, window)
		if s.stopped(ctx) {
			return
		}
	}
}

func (s *Subscriber) runWS(ctx context.Context, blocks chan<- *domain.Block) error {
	ctx, span := s.tracer.Start(ctx, "eth.subscribe.ws",
		trace.WithAttributes(attribute.String("url", s.config.WSURL)))
	defer span.End()

	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeEthereumConnectionFailed, apperror.WithCause(err))
	}
	defer client.Close()

	headers := make(chan *types.Header, s.config.BufferSize)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		return apperror.New(apperror.CodeEthereumSubscribeFailed, apperror.WithCause(err))
	}
	defer sub.Unsubscribe()

	s.setState(domain.StateConnected)
	s.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			span.RecordError(err)
			return err
		case header := <-headers:
			if header != nil {
				s.emit(ctx, header, false, blocks)
			}
		}
	}
}

// runHTTPPoller polls the latest header. window 0 polls until stopped.
func (s *Subscriber) runHTTPPoller(ctx context.Context, blocks chan<- *domain.Block, window time.Duration) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		deadline = timer.C
	}

	s.setState(domain.StateConnected)
	s.logger.Info(ctx, "polling latest block over http", "interval", s.config.PollInterval)

	s.pollLatestBlock(ctx, blocks)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-deadline:
			s.setState(domain.StateReconnecting)
			return
		case <-ticker.C:
			s.pollLatestBlock(ctx, blocks)
		}
	}
}

func (s *Subscriber) pollLatestBlock(ctx context.Context, blocks chan<- *domain.Block) {
	ctx, span := s.tracer.Start(ctx, "eth.poll.block")
	defer span.End()

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return s.http.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "http poll failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	if header.Number.Uint64() <= s.lastBlock.Load() {
		span.AddEvent("duplicate_block")
		return
	}

	s.emit(ctx, header, true, blocks)
}

// emit converts a header and hands it to the consumer without blocking.
func (s *Subscriber) emit(ctx context.Context, header *types.Header, fromHTTP bool, blocks chan<- *domain.Block) {
	block := headerToBlock(header)

	latency := block.Age(time.Now())
	s.metrics.blockLatency.Record(ctx, float64(latency.Milliseconds()),
		metric.WithAttributes(attribute.Bool("from_http", fromHTTP)))
	s.lastBlock.Store(block.Number)

	select {
	case blocks <- block:
		s.metrics.blocksReceived.Add(ctx, 1)
		s.logger.Debug(ctx, "block received",
			"number", block.Number,
			"latency_ms", latency.Milliseconds(),
			"next_base_fee", block.NextBaseFee(),
			"from_http", fromHTTP)
	default:
		s.logger.Warn(ctx, "block dropped, consumer busy", "number", block.Number)
	}
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
	}
}

// LatestBlock retrieves the most recent block over HTTP.
func (s *Subscriber) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eth.latest_block")
	defer span.End()

	if s.http == nil {
		if n := s.lastBlock.Load(); n > 0 {
			return &domain.Block{Number: n}, nil
		}
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("no http client and no block seen yet"))
	}

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return s.http.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "latest block")
	}

	span.SetStatus(codes.Ok, "fetched")
	return headerToBlock(header), nil
}

// State returns the current connection state.
func (s *Subscriber) State() domain.ConnectionState {
	return s.state.Load().(domain.ConnectionState)
}

// Close stops the subscription loop.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.state.Store(state)
}

func (s *Subscriber) stopped(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	default:
		return ctx.Err() != nil
	}
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

