package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

type fakeSuggester struct {
	wei   *big.Int
	err   error
	calls int
}

func (f *fakeSuggester) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.wei), nil
}

func TestGasOracle_GasPrice(t *testing.T) {
	tests := []struct {
		name     string
		suggest  *big.Int
		err      error
		wantGwei float64
		wantCode apperror.Code
	}{
		{"normal", domain.GweiToWei(25), nil, 25, ""},
		{"clamped", domain.GweiToWei(900), nil, 500, ""},
		{"rpc_failure", nil, errors.New("connection refused"), 0, apperror.CodeEthereumRPCError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSuggester{wei: tt.suggest, err: tt.err}
			oracle, err := NewGasOracle(client, DefaultGasOracleConfig(), logger.NewDiscard())
			if err != nil {
				t.Fatal(err)
			}
			defer oracle.Close()

			price, err := oracle.GasPrice(t.Context())
			if tt.wantCode != "" {
				if !apperror.HasCode(err, tt.wantCode) {
					t.Fatalf("err = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if price.Gwei() != tt.wantGwei {
				t.Errorf("gwei = %v, want %v", price.Gwei(), tt.wantGwei)
			}
			if price.Source != "rpc" {
				t.Errorf("source = %q", price.Source)
			}
		})
	}
}

func TestGasOracle_Caches(t *testing.T) {
	client := &fakeSuggester{wei: domain.GweiToWei(10)}
	cfg := DefaultGasOracleConfig()
	cfg.CacheTTL = time.Hour

	oracle, err := NewGasOracle(client, cfg, logger.NewDiscard())
	if err != nil {
		t.Fatal(err)
	}
	defer oracle.Close()

	for range 3 {
		if _, err := oracle.GasPrice(t.Context()); err != nil {
			t.Fatal(err)
		}
	}
	if client.calls != 1 {
		t.Errorf("rpc calls = %d, want 1", client.calls)
	}
}

func TestNewGasOracle_RequiresClient(t *testing.T) {
	if _, err := NewGasOracle(nil, DefaultGasOracleConfig(), logger.NewDiscard()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeFeeMarket struct {
	fakeSuggester
	header    *types.Header
	headerErr error
	tip       *big.Int
}

func (f *fakeFeeMarket) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return f.header, f.headerErr
}

func (f *fakeFeeMarket) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func TestGasOracle_FeeMarket(t *testing.T) {
	london := &types.Header{
		Number:   big.NewInt(19_000_000),
		BaseFee:  domain.GweiToWei(20),
		GasLimit: 30_000_000,
		GasUsed:  15_000_000,
	}
	preLondon := &types.Header{Number: big.NewInt(12_000_000), GasLimit: 15_000_000}

	tests := []struct {
		name       string
		header     *types.Header
		headerErr  error
		disabled   bool
		wantGwei   float64
		wantSource string
		wantCode   apperror.Code
	}{
		{"base_plus_tip", london, nil, false, 22, "rpc-1559", ""},
		{"pre_london_falls_back", preLondon, nil, false, 25, "rpc", ""},
		{"disabled", london, nil, true, 25, "rpc", ""},
		{"head_unavailable", nil, errors.New("timeout"), false, 0, "", apperror.CodeEthereumRPCError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeFeeMarket{
				fakeSuggester: fakeSuggester{wei: domain.GweiToWei(25)},
				header:        tt.header,
				headerErr:     tt.headerErr,
				tip:           domain.GweiToWei(2),
			}
			cfg := DefaultGasOracleConfig()
			cfg.FeeMarket = !tt.disabled

			oracle, err := NewGasOracle(client, cfg, logger.NewDiscard())
			if err != nil {
				t.Fatal(err)
			}
			defer oracle.Close()

			price, err := oracle.GasPrice(t.Context())
			if tt.wantCode != "" {
				if !apperror.HasCode(err, tt.wantCode) {
					t.Fatalf("err = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if price.Gwei() != tt.wantGwei || price.Source != tt.wantSource {
				t.Errorf("quote = %v gwei from %s, want %v from %s",
					price.Gwei(), price.Source, tt.wantGwei, tt.wantSource)
			}
		})
	}
}
