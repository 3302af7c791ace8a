package asset

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestAmount_String(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	a, err := NewAmount(WETH, raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.String(); got != "1.5 WETH" {
		t.Errorf("String() = %q", got)
	}
	if got := a.StringFixed(2); got != "1.50 WETH" {
		t.Errorf("StringFixed() = %q", got)
	}

	raw.SetInt64(0)
	if a.Raw().Sign() == 0 {
		t.Error("Amount must copy its raw value")
	}

	if _, err := NewAmount(USDC, big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative err = %v", err)
	}
	if _, err := NewAmount(nil, big.NewInt(1)); !errors.Is(err, ErrNilToken) {
		t.Errorf("nil token err = %v", err)
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
		wantErr  error
	}{
		{"whole", "2", 18, "2000000000000000000", nil},
		{"fraction", "1.25", 6, "1250000", nil},
		{"too_fine", "0.0000001", 6, "", ErrTooManyDecimals},
		{"negative", "-1", 6, "", ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := ParseUnits("abc", 18); err == nil {
		t.Error("expected parse error")
	}
}

func TestFormatUnits_Signed(t *testing.T) {
	if got := FormatUnits(big.NewInt(-2500000), 6).String(); got != "-2.5" {
		t.Errorf("FormatUnits = %s", got)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if r.Count() != 5 {
		t.Fatalf("Count = %d", r.Count())
	}

	if got := r.Symbol(AddrUSDC); got != "USDC" {
		t.Errorf("Symbol = %s", got)
	}

	unknown := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	if got := r.Symbol(unknown); !strings.HasPrefix(got, "0x1234") {
		t.Errorf("unknown symbol = %s", got)
	}

	if got := r.Format(AddrUSDC, big.NewInt(1_500_000)); got != "1.500000 USDC" {
		t.Errorf("Format = %q", got)
	}

	custom := MustNewToken(unknown, "ABC", 9)
	r.Register(custom)
	if tok, ok := r.Get(unknown); !ok || tok.Decimals() != 9 {
		t.Errorf("Get = %v %v", tok, ok)
	}
	if all := r.All(); all[0].Symbol() != "ABC" {
		t.Errorf("All not sorted: %v", all[0])
	}
}
