package gasstation

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/httpclient"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

func TestOracle_GasPrice(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantGwei float64
		wantErr  bool
	}{
		{"flat_fast", http.StatusOK, `{"fast": 42.5, "standard": 30}`, 42.5, false},
		{"flat_standard", http.StatusOK, `{"standard": 30}`, 30, false},
		{"nested_result", http.StatusOK, `{"status":"1","result":{"FastGasPrice":"18","ProposeGasPrice":"15"}}`, 18, false},
		{"clamped", http.StatusOK, `{"fast": 9000}`, 500, false},
		{"empty", http.StatusOK, `{}`, 0, true},
		{"server_error", http.StatusBadGateway, `oops`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("gas-station"))
			if err != nil {
				t.Fatal(err)
			}

			oracle, err := New(Config{URL: srv.URL, CacheTTL: time.Second, MaxGasPrice: 500}, client, logger.NewDiscard())
			if err != nil {
				t.Fatal(err)
			}
			defer oracle.Close()

			price, err := oracle.GasPrice(t.Context())
			if tt.wantErr {
				if !apperror.HasCode(err, apperror.CodeGasOracleFailed) {
					t.Fatalf("err = %v, want %s", err, apperror.CodeGasOracleFailed)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if price.Gwei() != tt.wantGwei {
				t.Errorf("gwei = %v, want %v", price.Gwei(), tt.wantGwei)
			}
		})
	}
}
