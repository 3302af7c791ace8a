// Package onchain reads pool reserves from contract state over JSON-RPC.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/cfmm-arbitrage/business/market/app"
	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/ratelimit"
)

const (
	tracerName = "market.onchain"
	meterName  = "market.onchain"
)

var (
	_ app.MarketDataSource   = (*Reader)(nil)
	_ app.BatchReserveReader = (*MulticallReader)(nil)
)

// Config holds configuration for the on-chain readers.
type Config struct {
	MulticallAddress common.Address
	// BatchSize caps the calls packed into one aggregate3.
	BatchSize         int
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MulticallAddress:  DefaultMulticallAddress,
		BatchSize:         150,
		CallTimeout:       5 * time.Second,
		RequestsPerSecond: 20,
		Burst:             5,
	}
}

type readerMetrics struct {
	calls       metric.Int64Counter
	callErrors  metric.Int64Counter
	callLatency metric.Float64Histogram
	batchCalls  metric.Int64Histogram
}

// Reader issues one eth_call per reserve getter.
type Reader struct {
	caller  ethereum.ContractCaller
	config  Config
	abis    *contractABIs
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *readerMetrics
}

// NewReader creates a reader over caller, typically an *ethclient.Client.
func NewReader(caller ethereum.ContractCaller, cfg Config, log logger.LoggerInterface) (*Reader, error) {
	if caller == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("on-chain reader requires an ethereum client"))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MulticallAddress == (common.Address{}) {
		cfg.MulticallAddress = DefaultMulticallAddress
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, fmt.Errorf("parse ABIs: %w", err)
	}

	r := &Reader{
		caller:  caller,
		config:  cfg,
		abis:    abis,
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("market-rpc")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	r.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return r, nil
}

func (r *Reader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.calls, err = meter.Int64Counter(
		"onchain_calls_total",
		metric.WithDescription("eth_call requests issued for reserves"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.callErrors, err = meter.Int64Counter(
		"onchain_call_errors_total",
		metric.WithDescription("Failed eth_call requests"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.callLatency, err = meter.Float64Histogram(
		"onchain_call_latency_ms",
		metric.WithDescription("eth_call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.metrics.batchCalls, err = meter.Int64Histogram(
		"onchain_multicall_size",
		metric.WithDescription("Calls packed per aggregate3"),
		metric.WithUnit("{call}"),
	)
	return err
}

// ReadReserves reads the reserves of one pool, index-aligned with ref.Tokens.
func (r *Reader) ReadReserves(ctx context.Context, ref domain.PoolRef) ([]*big.Int, error) {
	ctx, span := r.tracer.Start(ctx, "onchain.read_reserves",
		trace.WithAttributes(
			attribute.String("pool", ref.ID.Hex()),
			attribute.String("kind", ref.Kind.String()),
		),
	)
	defer span.End()

	p, err := r.plan(ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported pool")
		return nil, err
	}

	returns := make([][]byte, len(p.calls))
	for i, c := range p.calls {
		data, err := r.call(ctx, c.Target, c.CallData, p.method)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "call failed")
			return nil, apperror.New(apperror.CodePoolQueryFailed,
				apperror.WithCause(err), apperror.WithContext(ref.ID.Hex()))
		}
		returns[i] = data
	}

	reserves, err := p.decode(returns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, apperror.New(apperror.CodePoolQueryFailed,
			apperror.WithCause(err), apperror.WithContext(ref.ID.Hex()))
	}

	span.SetStatus(codes.Ok, "read")
	return reserves, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, data []byte, method string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	if r.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
	}

	attrs := metric.WithAttributes(attribute.String("method", method))
	r.metrics.calls.Add(ctx, 1, attrs)
	start := time.Now()

	out, err := r.cb.Execute(func() ([]byte, error) {
		return r.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})

	r.metrics.callLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1, attrs)
		return nil, err
	}
	return out, nil
}

// readPlan lists the calls that read one pool and how to assemble their
// return data into a reserve vector.
type readPlan struct {
	method string
	calls  []Call3
	decode func(returns [][]byte) ([]*big.Int, error)
}

func (r *Reader) plan(ref domain.PoolRef) (readPlan, error) {
	switch ref.Kind {
	case domain.KindConstantProduct:
		return r.pairPlan(ref)
	case domain.KindWeighted:
		return r.weightedPlan(ref)
	case domain.KindStableSwap:
		return r.stablePlan(ref)
	}
	return readPlan{}, apperror.New(apperror.CodeInvalidPool,
		apperror.WithContext(fmt.Sprintf("pool %s: no reader for kind %q", ref.ID.Hex(), ref.Kind)))
}

// pairPlan reads getReserves. The pair orders its tokens by address, so the
// result is swapped when ref lists the higher address first.
func (r *Reader) pairPlan(ref domain.PoolRef) (readPlan, error) {
	if len(ref.Tokens) != 2 {
		return readPlan{}, fmt.Errorf("pair %s has %d tokens", ref.ID.Hex(), len(ref.Tokens))
	}
	data, err := r.abis.pair.Pack("getReserves")
	if err != nil {
		return readPlan{}, err
	}
	swapped := ref.Tokens[0].Cmp(ref.Tokens[1]) > 0

	return readPlan{
		method: "getReserves",
		calls:  []Call3{{Target: ref.ID, AllowFailure: true, CallData: data}},
		decode: func(returns [][]byte) ([]*big.Int, error) {
			out, err := r.abis.pair.Unpack("getReserves", returns[0])
			if err != nil {
				return nil, err
			}
			if len(out) < 2 {
				return nil, fmt.Errorf("getReserves returned %d values", len(out))
			}
			r0, ok0 := out[0].(*big.Int)
			r1, ok1 := out[1].(*big.Int)
			if !ok0 || !ok1 {
				return nil, fmt.Errorf("getReserves returned %T, %T", out[0], out[1])
			}
			if swapped {
				r0, r1 = r1, r0
			}
			return []*big.Int{r0, r1}, nil
		},
	}, nil
}

func (r *Reader) weightedPlan(ref domain.PoolRef) (readPlan, error) {
	calls := make([]Call3, len(ref.Tokens))
	for i, t := range ref.Tokens {
		data, err := r.abis.weighted.Pack("getBalance", t)
		if err != nil {
			return readPlan{}, err
		}
		calls[i] = Call3{Target: ref.ID, AllowFailure: true, CallData: data}
	}
	return readPlan{
		method: "getBalance",
		calls:  calls,
		decode: func(returns [][]byte) ([]*big.Int, error) {
			return unpackUints(r.abis.weighted.Unpack, "getBalance", returns)
		},
	}, nil
}

// stablePlan reads balances(i); ref.Tokens must follow the pool's coin order.
func (r *Reader) stablePlan(ref domain.PoolRef) (readPlan, error) {
	calls := make([]Call3, len(ref.Tokens))
	for i := range ref.Tokens {
		data, err := r.abis.stable.Pack("balances", big.NewInt(int64(i)))
		if err != nil {
			return readPlan{}, err
		}
		calls[i] = Call3{Target: ref.ID, AllowFailure: true, CallData: data}
	}
	return readPlan{
		method: "balances",
		calls:  calls,
		decode: func(returns [][]byte) ([]*big.Int, error) {
			return unpackUints(r.abis.stable.Unpack, "balances", returns)
		},
	}, nil
}

func unpackUints(unpack func(string, []byte) ([]any, error), method string, returns [][]byte) ([]*big.Int, error) {
	out := make([]*big.Int, len(returns))
	for i, data := range returns {
		vals, err := unpack(method, data)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", method, i, err)
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("%s[%d] returned %d values", method, i, len(vals))
		}
		v, ok := vals[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s[%d] returned %T", method, i, vals[0])
		}
		out[i] = v
	}
	return out, nil
}

// MulticallReader batches the reserve getters of many pools into Multicall3
// aggregate3 calls with per-call failure allowed.
type MulticallReader struct {
	*Reader
}

// NewMulticallReader creates a batching reader.
func NewMulticallReader(caller ethereum.ContractCaller, cfg Config, log logger.LoggerInterface) (*MulticallReader, error) {
	r, err := NewReader(caller, cfg, log)
	if err != nil {
		return nil, err
	}
	return &MulticallReader{Reader: r}, nil
}

// ReadReservesBatch reads every ref. A failed chunk or reverted getter
// fails only the pools it belongs to.
func (m *MulticallReader) ReadReservesBatch(ctx context.Context, refs []domain.PoolRef) ([]app.ReserveResult, error) {
	ctx, span := m.tracer.Start(ctx, "onchain.read_reserves_batch",
		trace.WithAttributes(attribute.Int("pools", len(refs))))
	defer span.End()

	type owner struct{ pool, call int }

	results := make([]app.ReserveResult, len(refs))
	plans := make([]readPlan, len(refs))
	returns := make([][][]byte, len(refs))
	failed := make([]error, len(refs))

	var (
		calls  []Call3
		owners []owner
	)
	for i, ref := range refs {
		results[i].Pool = ref.ID
		p, err := m.plan(ref)
		if err != nil {
			results[i].Err = err
			continue
		}
		plans[i] = p
		returns[i] = make([][]byte, len(p.calls))
		for j, c := range p.calls {
			calls = append(calls, c)
			owners = append(owners, owner{pool: i, call: j})
		}
	}

	for start := 0; start < len(calls); start += m.config.BatchSize {
		end := min(start+m.config.BatchSize, len(calls))

		out, err := m.aggregate(ctx, calls[start:end])
		if err == nil && len(out) != end-start {
			err = fmt.Errorf("aggregate3 returned %d results for %d calls", len(out), end-start)
		}
		if err != nil {
			m.logger.Warn(ctx, "multicall chunk failed", "calls", end-start, "error", err)
		}

		for k := start; k < end; k++ {
			o := owners[k]
			switch {
			case err != nil:
				failed[o.pool] = err
			case !out[k-start].Success:
				failed[o.pool] = fmt.Errorf("call %d reverted", o.call)
			default:
				returns[o.pool][o.call] = out[k-start].ReturnData
			}
		}
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	var nFailed int
	for i := range refs {
		if results[i].Err != nil {
			nFailed++
			continue
		}
		if failed[i] != nil {
			results[i].Err = apperror.New(apperror.CodePoolQueryFailed,
				apperror.WithCause(failed[i]), apperror.WithContext(refs[i].ID.Hex()))
			nFailed++
			continue
		}
		reserves, err := plans[i].decode(returns[i])
		if err != nil {
			results[i].Err = apperror.New(apperror.CodePoolQueryFailed,
				apperror.WithCause(err), apperror.WithContext(refs[i].ID.Hex()))
			nFailed++
			continue
		}
		results[i].Reserves = reserves
	}

	span.SetAttributes(attribute.Int("calls", len(calls)), attribute.Int("pools.failed", nFailed))
	span.SetStatus(codes.Ok, "read")

	return results, nil
}

func (m *MulticallReader) aggregate(ctx context.Context, calls []Call3) ([]Result3, error) {
	data, err := m.abis.multicall.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	m.metrics.batchCalls.Record(ctx, int64(len(calls)))

	raw, err := m.call(ctx, m.config.MulticallAddress, data, "aggregate3")
	if err != nil {
		return nil, err
	}

	var out []Result3
	if err := m.abis.multicall.UnpackIntoInterface(&out, "aggregate3", raw); err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	return out, nil
}
