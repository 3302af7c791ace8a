package filefeed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
)

const sample = `
tokens:
  - address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    symbol: WETH
    decimals: 18
  - address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"
    symbol: UNI
    decimals: 18
pools:
  - id: "0x00000000000000000000000000000000000000a1"
    kind: uniswap_v2
    tokens: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"]
    reserves: ["100000000000000000000", "2000000000000000000000"]
  - id: "0x00000000000000000000000000000000000000a2"
    kind: balancer
    tokens: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"]
    weights: [0.8, 0.2]
    fee: {numerator: 1, denominator: 1000}
  - id: "0x00000000000000000000000000000000000000a3"
    kind: curve
    tokens: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"]
    amplification: 200
    max_trade_fraction: 0.1
`

func TestFeed_Markets(t *testing.T) {
	f := NewFromBytes([]byte(sample))

	specs, err := f.Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}

	tests := []struct {
		name     string
		spec     domain.PoolSpec
		kind     domain.Kind
		reserves bool
	}{
		{"pair", specs[0], domain.KindConstantProduct, true},
		{"weighted", specs[1], domain.KindWeighted, false},
		{"stable", specs[2], domain.KindStableSwap, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.spec.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.spec.Kind, tt.kind)
			}
			if (tt.spec.Reserves != nil) != tt.reserves {
				t.Errorf("Reserves = %v", tt.spec.Reserves)
			}
			if (!tt.spec.UpdatedAt.IsZero()) != tt.reserves {
				t.Errorf("UpdatedAt = %v", tt.spec.UpdatedAt)
			}
		})
	}

	if specs[1].Fee != (domain.Fee{Numerator: 1, Denominator: 1000}) {
		t.Errorf("weighted fee = %v", specs[1].Fee)
	}
	if specs[2].Amplification != 200 || specs[2].MaxTradeFraction != 0.1 {
		t.Errorf("stable spec = %+v", specs[2])
	}
	if got := len(f.Tokens()); got != 2 {
		t.Errorf("Tokens = %d, want 2", got)
	}
}

func TestFeed_ReadReserves(t *testing.T) {
	f := NewFromBytes([]byte(sample))
	specs, err := f.Markets(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.ReadReserves(context.Background(), specs[0].Ref())
	if err != nil {
		t.Fatalf("ReadReserves: %v", err)
	}
	if got[0].String() != "100000000000000000000" || got[1].String() != "2000000000000000000000" {
		t.Errorf("reserves = %v", got)
	}

	// Callers may mutate the result without touching the feed.
	got[0].SetInt64(0)
	again, _ := f.ReadReserves(context.Background(), specs[0].Ref())
	if again[0].Sign() == 0 {
		t.Error("feed reserves were aliased")
	}

	_, err = f.ReadReserves(context.Background(), specs[1].Ref())
	if !apperror.HasCode(err, apperror.CodePoolQueryFailed) {
		t.Errorf("pool without reserves: err = %v", err)
	}
}

func TestFeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code apperror.Code
	}{
		{"bad_yaml", "pools: [", apperror.CodeMarketsFeedFailed},
		{"bad_kind", `pools: [{id: "0x00000000000000000000000000000000000000f1", kind: orderbook, tokens: ["0x00000000000000000000000000000000000000f2", "0x00000000000000000000000000000000000000f3"]}]`, apperror.CodeInvalidPool},
		{"bad_reserve", `pools: [{id: "0x00000000000000000000000000000000000000f1", kind: cpmm, tokens: ["0x00000000000000000000000000000000000000f2", "0x00000000000000000000000000000000000000f3"], reserves: ["1", "-5"]}]`, apperror.CodeInvalidPool},
		{"reserve_count", `pools: [{id: "0x00000000000000000000000000000000000000f1", kind: cpmm, tokens: ["0x00000000000000000000000000000000000000f2", "0x00000000000000000000000000000000000000f3"], reserves: ["1"]}]`, apperror.CodeInvalidPool},
		{"bad_token", `tokens: [{address: "nope", symbol: X, decimals: 18}]`, apperror.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromBytes([]byte(tt.doc)).Markets(context.Background())
			if !apperror.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestFeed_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	specs, err := New(path).Markets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if specs[0].ID != common.HexToAddress("0xa1") {
		t.Errorf("ID = %s", specs[0].ID.Hex())
	}

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml")).Markets(context.Background())
	if !apperror.HasCode(err, apperror.CodeMarketsFeedFailed) {
		t.Errorf("missing file: err = %v", err)
	}
}
