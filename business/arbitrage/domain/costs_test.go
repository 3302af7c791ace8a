package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestGasQuote_Cost(t *testing.T) {
	tests := []struct {
		name     string
		quote    GasQuote
		swaps    int
		wantWei  string
		wantCost string
	}{
		{
			name:     "native_quote",
			quote:    NewNativeGasQuote(gwei(30), 150_000),
			swaps:    2,
			wantWei:  "9000000000000000", // 2 * 150k * 30 gwei = 0.009 ETH
			wantCost: "9000000000000000",
		},
		{
			name: "usdc_quote_2000",
			// 2000 USDC per ETH: 2000e6 raw per 1e18 wei.
			quote:    GasQuote{PriceWei: gwei(30), GasPerSwap: 150_000, QuotePerWei: decimal.RequireFromString("0.000000002")},
			swaps:    2,
			wantWei:  "9000000000000000",
			wantCost: "18000000", // 18 USDC
		},
		{
			name:     "rounds_up",
			quote:    GasQuote{PriceWei: big.NewInt(1), GasPerSwap: 1, QuotePerWei: decimal.RequireFromString("0.5")},
			swaps:    1,
			wantWei:  "1",
			wantCost: "1",
		},
		{
			name:     "zero_gas_price",
			quote:    NewNativeGasQuote(new(big.Int), 150_000),
			swaps:    2,
			wantWei:  "0",
			wantCost: "0",
		},
		{
			name:     "nil_gas_price",
			quote:    GasQuote{GasPerSwap: 150_000, QuotePerWei: decimal.NewFromInt(1)},
			swaps:    2,
			wantWei:  "0",
			wantCost: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.CostWei(tt.swaps).String(); got != tt.wantWei {
				t.Errorf("CostWei = %s, want %s", got, tt.wantWei)
			}
			if got := tt.quote.Cost(tt.swaps).String(); got != tt.wantCost {
				t.Errorf("Cost = %s, want %s", got, tt.wantCost)
			}
		})
	}
}

func TestProfitPercent(t *testing.T) {
	tests := []struct {
		name        string
		net, input  int64
		want        string
		wantDefined bool
	}{
		{"one_percent", 1, 100, "1", true},
		{"fraction", 1, 3, "33.333333", true},
		{"zero_input", 5, 0, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProfitPercent(big.NewInt(tt.net), big.NewInt(tt.input))
			if ok != tt.wantDefined {
				t.Fatalf("defined = %v, want %v", ok, tt.wantDefined)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ProfitPercent = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Thresholds)
		wantErr bool
	}{
		{"default", func(*Thresholds) {}, false},
		{"nil_min_profit", func(th *Thresholds) { th.MinProfit = nil }, true},
		{"negative_min_profit", func(th *Thresholds) { th.MinProfit = big.NewInt(-1) }, true},
		{"negative_spread", func(th *Thresholds) { th.MinSpreadBps = decimal.NewFromInt(-1) }, true},
		{"slippage_over_100", func(th *Thresholds) { th.MaxSlippagePct = decimal.NewFromInt(101) }, true},
		{"zero_trade_pct", func(th *Thresholds) { th.MaxTradePct = decimal.Zero }, true},
		{"full_trade_pct", func(th *Thresholds) { th.MaxTradePct = decimal.NewFromInt(100) }, false},
		{"negative_gas_cap", func(th *Thresholds) { th.MaxGasPrice = big.NewInt(-1) }, true},
		{"negative_age", func(th *Thresholds) { th.MaxReserveAge = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			if err := th.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestThresholds_MaxInput(t *testing.T) {
	th := DefaultThresholds()
	th.MaxTradePct = decimal.RequireFromString("15")

	if got := th.MaxInput(big.NewInt(1001)).String(); got != "150" {
		t.Errorf("MaxInput = %s, want 150", got)
	}
}
