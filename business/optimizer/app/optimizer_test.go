package app

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func newPool(t *testing.T, id string, a, b common.Address, r0, r1 int64) market.CFMM {
	t.Helper()
	p, err := market.NewPool(market.PoolSpec{
		ID:       common.HexToAddress(id),
		Kind:     market.KindConstantProduct,
		Tokens:   []common.Address{a, b},
		Reserves: []*big.Int{big.NewInt(r0), big.NewInt(r1)},
		Fee:      market.FeeUniswapV2,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func problemFor(t *testing.T, pools ...market.CFMM) domain.Problem {
	t.Helper()
	n, err := market.NewNetwork(pools)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	return domain.FromNetwork(n)
}

func newOptimizer(t *testing.T, mutate func(*domain.Config)) *HybridOptimizer {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.MaxDuration = 0
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := NewHybridOptimizer(cfg, logger.NewDiscard())
	if err != nil {
		t.Fatalf("NewHybridOptimizer: %v", err)
	}
	return o
}

func assertMonotone(t *testing.T, trace []float64) {
	t.Helper()
	for i := 1; i < len(trace); i++ {
		if trace[i] > trace[i-1] {
			t.Fatalf("trace increased at %d: %v -> %v", i, trace[i-1], trace[i])
		}
	}
}

func TestOptimize_SinglePoolQuadratic(t *testing.T) {
	// The target sells 10 A for 11 B, which a 1000/1000 pool cannot fill
	// at parity, so the clearing prices are interior.
	utility, err := domain.NewQuadraticTarget([]float64{-10, 11}, 1)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		initial []float64
	}{
		{"unit_start", []float64{1, 1}},
		{"zero_start", []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := problemFor(t, newPool(t, "0x1", tokenA, tokenB, 1000, 1000))
			o := newOptimizer(t, nil)

			res, err := o.Optimize(t.Context(), problem, utility, tt.initial)
			if err != nil {
				t.Fatalf("Optimize: %v", err)
			}

			if !res.Converged || res.Reason != domain.ReasonConverged {
				t.Fatalf("Reason = %s after %d iterations, gradient %v", res.Reason, res.Iterations, res.GradientNorm)
			}
			if res.GradientNorm >= o.Config().Tolerance {
				t.Errorf("GradientNorm = %v", res.GradientNorm)
			}
			if res.Iterations == 0 || len(res.Trace) != res.Iterations+1 {
				t.Errorf("Iterations = %d, trace length %d", res.Iterations, len(res.Trace))
			}
			assertMonotone(t, res.Trace)

			want := []float64{0.5639, 0.5776}
			for j, p := range res.Prices {
				if math.Abs(p-want[j]) > 1e-3 {
					t.Errorf("price[%d] = %v, want ~%v", j, p, want[j])
				}
			}

			// At clearing prices the pool fills the utility's optimal trade
			// psi* = t - v.
			target := []float64{-10, 11}
			for j := range res.NetTrade {
				if got, want := res.NetTrade[j], target[j]-res.Prices[j]; math.Abs(got-want) > 1e-3 {
					t.Errorf("net trade[%d] = %v, want %v", j, got, want)
				}
			}

			if got := len(res.ActiveTrades()); got != 1 {
				t.Errorf("ActiveTrades = %d", got)
			}
			if res.NetTrade[0] >= 0 || res.NetTrade[1] <= 0 {
				t.Errorf("NetTrade = %v, want A in and B out", res.NetTrade)
			}
		})
	}
}

func TestOptimize_RoutesThroughChain(t *testing.T) {
	// A-B and B-C pools; the target moves A into C, so B only passes through.
	problem := problemFor(t,
		newPool(t, "0x1", tokenA, tokenB, 1000, 1000),
		newPool(t, "0x2", tokenB, tokenC, 1000, 1000),
	)
	utility, err := domain.NewQuadraticTarget([]float64{-10, 0, 11}, 1)
	if err != nil {
		t.Fatal(err)
	}

	res, err := newOptimizer(t, nil).Optimize(t.Context(), problem, utility, []float64{1, 1, 1})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !res.Converged {
		t.Fatalf("Reason = %s, gradient %v", res.Reason, res.GradientNorm)
	}
	assertMonotone(t, res.Trace)

	if !(res.Prices[0] < res.Prices[1] && res.Prices[1] < res.Prices[2]) {
		t.Errorf("prices = %v, want increasing along the route", res.Prices)
	}
	if len(res.ActiveTrades()) != 2 {
		t.Errorf("ActiveTrades = %v", res.ActiveTrades())
	}
	if res.NetTrade[0] >= 0 || res.NetTrade[2] <= 0 {
		t.Errorf("NetTrade = %v", res.NetTrade)
	}
}

func TestOptimize_MaxIterations(t *testing.T) {
	problem := problemFor(t, newPool(t, "0x1", tokenA, tokenB, 1000, 1000))
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)

	o := newOptimizer(t, func(c *domain.Config) { c.MaxIterations = 2 })
	res, err := o.Optimize(t.Context(), problem, utility, []float64{1, 1})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Converged || res.Reason != domain.ReasonMaxIterations {
		t.Errorf("Reason = %s, Converged = %v", res.Reason, res.Converged)
	}
	if res.Iterations != 2 || len(res.Trace) != 3 {
		t.Errorf("Iterations = %d, trace %v", res.Iterations, res.Trace)
	}
	assertMonotone(t, res.Trace)
}

type failingMarket struct {
	id  common.Address
	err error
}

func (m failingMarket) ID() common.Address { return m.id }

func (m failingMarket) Arbitrage([]float64) (market.Trade, error) {
	return market.Trade{}, m.err
}

func TestOptimize_PoolFailure(t *testing.T) {
	good := newPool(t, "0x1", tokenA, tokenB, 1000, 1000)
	bad := failingMarket{id: common.HexToAddress("0xbad"), err: errors.New("oracle down")}

	problem := domain.Problem{
		Tokens:    []common.Address{tokenA, tokenB},
		Markets:   []domain.Market{good, bad},
		Couplings: []market.Coupling{{Global: []int{0, 1}}, {Global: []int{0, 1}}},
		Depths:    []float64{1000, 1000},
	}
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)

	res, err := newOptimizer(t, nil).Optimize(t.Context(), problem, utility, []float64{1, 1})
	if err == nil {
		t.Fatalf("expected error, got %+v", res)
	}

	var poolErr *domain.PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("error %v does not carry a PoolError", err)
	}
	if poolErr.Pool != bad.id {
		t.Errorf("PoolError.Pool = %s", poolErr.Pool.Hex())
	}
	if !apperror.HasCode(err, apperror.CodeOptimizerFailed) {
		t.Errorf("code = %s", apperror.GetCode(err))
	}
}

func TestOptimize_Cancelled(t *testing.T) {
	problem := problemFor(t, newPool(t, "0x1", tokenA, tokenB, 1000, 1000))
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := newOptimizer(t, nil).Optimize(ctx, problem, utility, []float64{2, 3})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Reason != domain.ReasonCancelled || res.Converged {
		t.Errorf("Reason = %s", res.Reason)
	}
	if res.Prices[0] != 2 || res.Prices[1] != 3 {
		t.Errorf("Prices = %v, want the starting point", res.Prices)
	}
}

type slowMarket struct {
	market.CFMM
	delay time.Duration
}

func (m slowMarket) Arbitrage(prices []float64) (market.Trade, error) {
	time.Sleep(m.delay)
	return m.CFMM.Arbitrage(prices)
}

func TestOptimize_TimeBudget(t *testing.T) {
	pool := newPool(t, "0x1", tokenA, tokenB, 1000, 1000)
	problem := domain.Problem{
		Tokens:    []common.Address{tokenA, tokenB},
		Markets:   []domain.Market{slowMarket{CFMM: pool, delay: 5 * time.Millisecond}},
		Couplings: []market.Coupling{{Global: []int{0, 1}}},
		Depths:    []float64{1000, 1000},
	}
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)

	o := newOptimizer(t, func(c *domain.Config) {
		c.MaxDuration = 20 * time.Millisecond
		c.Tolerance = 1e-300
		c.MaxIterations = 10_000
	})
	res, err := o.Optimize(t.Context(), problem, utility, []float64{1, 1})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Reason != domain.ReasonCancelled {
		t.Errorf("Reason = %s after %d iterations", res.Reason, res.Iterations)
	}
	assertMonotone(t, res.Trace)
}

func TestOptimize_InvalidInput(t *testing.T) {
	problem := problemFor(t, newPool(t, "0x1", tokenA, tokenB, 1000, 1000))
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)
	o := newOptimizer(t, nil)

	tests := []struct {
		name     string
		problem  domain.Problem
		utility  domain.Utility
		initial  []float64
		wantCode apperror.Code
	}{
		{"empty_problem", domain.Problem{}, utility, nil, apperror.CodeInvalidInput},
		{"nil_utility", problem, nil, []float64{1, 1}, apperror.CodeInvalidInput},
		{"short_initial", problem, utility, []float64{1}, apperror.CodeInvalidPrices},
		{"negative_initial", problem, utility, []float64{1, -1}, apperror.CodeInvalidPrices},
		{"nan_initial", problem, utility, []float64{math.NaN(), 1}, apperror.CodeInvalidPrices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Optimize(t.Context(), tt.problem, tt.utility, tt.initial)
			if !apperror.HasCode(err, tt.wantCode) {
				t.Errorf("err = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestNewHybridOptimizer_RejectsBadConfig(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Memory = 0
	if _, err := NewHybridOptimizer(cfg, logger.NewDiscard()); !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Errorf("err = %v", err)
	}
}

func TestOptimize_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	problem := problemFor(t, newPool(t, "0x1", tokenA, tokenB, 1000, 1000))
	utility, _ := domain.NewQuadraticTarget([]float64{-10, 11}, 1)
	if _, err := newOptimizer(t, nil).Optimize(t.Context(), problem, utility, []float64{1, 1}); err != nil {
		t.Fatal(err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "optimizer.optimize" {
		t.Fatalf("spans = %v", spans)
	}
	var reason string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "reason" {
			reason = kv.Value.AsString()
		}
	}
	if reason != string(domain.ReasonConverged) {
		t.Errorf("reason attribute = %q", reason)
	}
}
