package domain

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func mustPool(t *testing.T, spec PoolSpec) CFMM {
	t.Helper()
	p, err := NewPool(spec)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func cpmm(t *testing.T, id string, r0, r1 *big.Int) CFMM {
	return mustPool(t, PoolSpec{
		ID:       common.HexToAddress(id),
		Kind:     KindConstantProduct,
		Tokens:   []common.Address{tokenA, tokenB},
		Reserves: []*big.Int{r0, r1},
		Fee:      FeeUniswapV2,
	})
}

func TestFee_Convention(t *testing.T) {
	// Pinned: 0.3% fee, tendering 1000 credits 997 and crediting 997
	// requires tendering 1000.
	f := Fee{Numerator: 3, Denominator: 1000}

	if got := f.Effective(big.NewInt(1000)); got.Int64() != 997 {
		t.Errorf("Effective(1000) = %s, want 997", got)
	}
	if got := f.Tendered(big.NewInt(997)); got.Int64() != 1000 {
		t.Errorf("Tendered(997) = %s, want 1000", got)
	}
	if g := f.Gamma(); math.Abs(g-0.997) > 1e-15 {
		t.Errorf("Gamma = %v, want 0.997", g)
	}
	if got := f.TenderedFloat(997); math.Abs(got-1000) > 1e-9 {
		t.Errorf("TenderedFloat(997) = %v", got)
	}
}

func TestFee_Validate(t *testing.T) {
	tests := []struct {
		name    string
		fee     Fee
		wantErr bool
	}{
		{"uniswap", FeeUniswapV2, false},
		{"zero_fee", Fee{0, 1}, false},
		{"zero_denominator", Fee{0, 0}, true},
		{"full_fee", Fee{10, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fee.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstantProduct_ReadOnlyMathIsIdempotent(t *testing.T) {
	p := cpmm(t, "0x1", big.NewInt(1_000), big.NewInt(2_000))
	reserves := p.Reserves()

	k1, err := p.TradingFunction(reserves)
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := p.TradingFunction(reserves)
	if k1.Cmp(k2) != 0 || k1.Cmp(big.NewFloat(2_000_000)) != 0 {
		t.Errorf("TradingFunction = %s, %s", k1, k2)
	}

	g, _ := p.TradingFunctionGradient(reserves)
	if g[0].Cmp(big.NewFloat(2000)) != 0 || g[1].Cmp(big.NewFloat(1000)) != 0 {
		t.Errorf("gradient = [%s %s], want [2000 1000]", g[0], g[1])
	}

	if reserves[0].Int64() != 1000 || p.Reserves()[1].Int64() != 2000 {
		t.Error("reserves mutated by read-only math")
	}
}

func TestConstantProduct_Arbitrage(t *testing.T) {
	p := cpmm(t, "0x1", ether(1000), ether(1000))
	r0, r1 := 1000e18, 1000e18

	tests := []struct {
		name       string
		prices     []float64
		wantZero   bool
		wantTender int
		wantClamp  bool
	}{
		{"equal_prices", []float64{1, 1}, true, 0, false},
		{"inside_fee_band", []float64{1, 1.002}, true, 0, false},
		{"token1_rich", []float64{1, 1.1}, false, 0, false},
		{"token0_rich", []float64{1.1, 1}, false, 1, false},
		{"huge_gap_clamped", []float64{1, 100}, false, 0, true},
		{"free_token0", []float64{0, 1}, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := p.Arbitrage(tt.prices)
			if err != nil {
				t.Fatalf("Arbitrage: %v", err)
			}
			if tt.wantZero {
				if !trade.IsZero() || trade.Value != 0 {
					t.Fatalf("expected zero trade, got %+v", trade)
				}
				return
			}

			if trade.Value <= 0 {
				t.Fatalf("Value = %v, want > 0", trade.Value)
			}
			in, out := tt.wantTender, 1-tt.wantTender
			tender, receive := -trade.Delta[in], trade.Delta[out]
			if tender <= 0 || receive <= 0 {
				t.Fatalf("unexpected delta %v", trade.Delta)
			}

			rIn := []float64{r0, r1}[in]
			rOut := []float64{r0, r1}[out]
			limit := DefaultMaxTradeFraction * rIn
			if tender > limit*(1+1e-12) {
				t.Errorf("tender %v exceeds cap %v", tender, limit)
			}
			if tt.wantClamp && math.Abs(tender-limit)/limit > 1e-12 {
				t.Errorf("tender %v, want clamp %v", tender, limit)
			}

			// Post-trade state stays on the fee-adjusted invariant.
			k := r0 * r1
			after := (rIn + 0.997*tender) * (rOut - receive)
			if math.Abs(after-k)/k > 1e-9 {
				t.Errorf("invariant drift: %v vs %v", after, k)
			}

			wantValue := tt.prices[out]*receive - tt.prices[in]*tender
			if math.Abs(trade.Value-wantValue) > 1e-6*math.Abs(wantValue) {
				t.Errorf("Value = %v, want %v", trade.Value, wantValue)
			}
		})
	}
}

func TestConstantProduct_ArbitrageIsOptimal(t *testing.T) {
	p := cpmm(t, "0x1", big.NewInt(1_000_000), big.NewInt(2_000_000))
	prices := []float64{2.5, 1}

	trade, err := p.Arbitrage(prices)
	if err != nil {
		t.Fatal(err)
	}
	tender := -trade.Delta[1]

	profit := func(x float64) float64 {
		eff := 0.997 * x
		return prices[0]*(1_000_000*eff/(2_000_000+eff)) - prices[1]*x
	}
	for _, x := range []float64{tender * 0.9, tender * 1.1, tender * 0.5} {
		if profit(x) > trade.Value+1e-6 {
			t.Errorf("profit(%v) = %v beats optimum %v", x, profit(x), trade.Value)
		}
	}
}

func TestArbitrage_InvalidPrices(t *testing.T) {
	p := cpmm(t, "0x1", big.NewInt(10), big.NewInt(10))

	tests := []struct {
		name   string
		prices []float64
	}{
		{"negative", []float64{-1, 1}},
		{"nan", []float64{math.NaN(), 1}},
		{"inf", []float64{1, math.Inf(1)}},
		{"short", []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Arbitrage(tt.prices); !errors.Is(err, ErrInvalidPrices) {
				t.Errorf("err = %v, want ErrInvalidPrices", err)
			}
		})
	}
}

func TestAmountOut(t *testing.T) {
	tests := []struct {
		name               string
		in, rIn, rOut, out uint64
	}{
		// 1000*997*2000 / (1000*1000 + 997000) = 998
		{"small", 1000, 1000, 2000, 998},
		{"dust", 1, 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountOut(uint256.NewInt(tt.in), uint256.NewInt(tt.rIn), uint256.NewInt(tt.rOut), FeeUniswapV2)
			if err != nil {
				t.Fatal(err)
			}
			if got.Uint64() != tt.out {
				t.Errorf("AmountOut = %d, want %d", got.Uint64(), tt.out)
			}
		})
	}

	if _, err := AmountOut(uint256.NewInt(1), new(uint256.Int), uint256.NewInt(1), FeeUniswapV2); err == nil {
		t.Error("expected error for zero reserve")
	}
}

type stubReader struct {
	reserves []*big.Int
	err      error
	calls    int
}

func (s *stubReader) ReadReserves(_ context.Context, _ PoolRef) ([]*big.Int, error) {
	s.calls++
	return s.reserves, s.err
}

func TestUpdateReserves(t *testing.T) {
	tests := []struct {
		name    string
		reader  *stubReader
		wantErr bool
		want    []int64
	}{
		{"ok", &stubReader{reserves: []*big.Int{big.NewInt(5), big.NewInt(7)}}, false, []int64{5, 7}},
		{"reader_error", &stubReader{err: errors.New("rpc down")}, true, []int64{1, 1}},
		{"wrong_length", &stubReader{reserves: []*big.Int{big.NewInt(5)}}, true, []int64{1, 1}},
		{"negative", &stubReader{reserves: []*big.Int{big.NewInt(-5), big.NewInt(1)}}, true, []int64{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cpmm(t, "0x1", big.NewInt(1), big.NewInt(1))
			err := p.UpdateReserves(context.Background(), tt.reader)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			got := p.Reserves()
			for i, w := range tt.want {
				if got[i].Int64() != w {
					t.Errorf("reserve %d = %s, want %d", i, got[i], w)
				}
			}
			if !tt.wantErr && p.UpdatedAt().IsZero() {
				t.Error("UpdatedAt not set")
			}
		})
	}
}

func TestNewPool_Validation(t *testing.T) {
	two := []common.Address{tokenA, tokenB}
	tests := []struct {
		name string
		spec PoolSpec
	}{
		{"one_token", PoolSpec{Kind: KindConstantProduct, Tokens: []common.Address{tokenA}, Fee: FeeUniswapV2}},
		{"duplicate_token", PoolSpec{Kind: KindConstantProduct, Tokens: []common.Address{tokenA, tokenA}, Fee: FeeUniswapV2}},
		{"bad_fee", PoolSpec{Kind: KindConstantProduct, Tokens: two, Fee: Fee{5, 5}}},
		{"reserve_mismatch", PoolSpec{Kind: KindConstantProduct, Tokens: two, Fee: FeeUniswapV2, Reserves: []*big.Int{big.NewInt(1)}}},
		{"negative_reserve", PoolSpec{Kind: KindConstantProduct, Tokens: two, Fee: FeeUniswapV2, Reserves: []*big.Int{big.NewInt(-1), big.NewInt(1)}}},
		{"weights_missing", PoolSpec{Kind: KindWeighted, Tokens: two, Fee: FeeUniswapV2}},
		{"weights_negative", PoolSpec{Kind: KindWeighted, Tokens: two, Fee: FeeUniswapV2, Weights: []float64{-1, 2}}},
		{"zero_amp", PoolSpec{Kind: KindStableSwap, Tokens: two, Fee: FeeUniswapV2}},
		{"unknown_kind", PoolSpec{Kind: Kind("orderbook"), Tokens: two, Fee: FeeUniswapV2}},
		{"bad_trade_fraction", PoolSpec{Kind: KindConstantProduct, Tokens: two, Fee: FeeUniswapV2, MaxTradeFraction: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPool(tt.spec); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFactory_AppliesDefaults(t *testing.T) {
	f := NewFactory(Fee{Numerator: 5, Denominator: 10_000}, 0.1)
	p, err := f.Build(PoolSpec{Kind: KindConstantProduct, Tokens: []common.Address{tokenA, tokenB}})
	if err != nil {
		t.Fatal(err)
	}
	if p.Fee() != (Fee{5, 10_000}) {
		t.Errorf("Fee = %v", p.Fee())
	}
	if p.MaxTradeFraction() != 0.1 {
		t.Errorf("MaxTradeFraction = %v", p.MaxTradeFraction())
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"uniswap_v2": KindConstantProduct, "balancer": KindWeighted, "curve": KindStableSwap} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("v3"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
