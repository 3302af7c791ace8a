package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
gas:
  source: static
  static_gwei: 12
markets:
  file: pools.yaml
arbitrage:
  min_profit_wei: "1000000000000000"
optimizer:
  enabled: true
  memory: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "cfmm-arbitrage" {
		t.Errorf("App.Name = %q", cfg.App.Name)
	}
	if cfg.Gas.StaticGwei != 12 || cfg.Gas.GasPerSwap != 150_000 {
		t.Errorf("Gas = %+v", cfg.Gas)
	}
	if cfg.Markets.RefreshInterval != 12*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.Markets.RefreshInterval)
	}
	if cfg.Arbitrage.MinProfit().String() != "1000000000000000" {
		t.Errorf("MinProfit = %s", cfg.Arbitrage.MinProfit())
	}
	if len(cfg.Arbitrage.QuoteTokenAddresses()) != 1 {
		t.Errorf("QuoteTokens = %v", cfg.Arbitrage.QuoteTokens)
	}
	if cfg.Optimizer.Memory != 5 || cfg.Optimizer.MaxIterations != 200 {
		t.Errorf("Optimizer = %+v", cfg.Optimizer)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Markets: MarketsConfig{Source: "file", File: "m.yaml", FeeNumerator: 3, FeeDenominator: 1000, MaxTradeFraction: 0.2},
			Gas:     GasConfig{Source: "static", StaticGwei: 30},
			Arbitrage: ArbitrageConfig{
				QuoteTokens:  []string{defaultQuoteToken},
				MinProfitWei: "0",
				MaxTradePct:  20,
				ScanInterval: time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"onchain_without_rpc", func(c *Config) { c.Markets.Source = "onchain" }, true},
		{"unknown_market_source", func(c *Config) { c.Markets.Source = "graph" }, true},
		{"bad_fee", func(c *Config) { c.Markets.FeeNumerator = 1000 }, true},
		{"rpc_gas_without_rpc", func(c *Config) { c.Gas.Source = "rpc" }, true},
		{"station_without_url", func(c *Config) { c.Gas.Source = "station" }, true},
		{"bad_quote", func(c *Config) { c.Arbitrage.QuoteTokens = []string{"weth"} }, true},
		{"bad_min_profit", func(c *Config) { c.Arbitrage.MinProfitWei = "1e18" }, true},
		{"slippage_over_100", func(c *Config) { c.Arbitrage.MaxSlippagePct = 150 }, true},
		{"zero_trade_pct", func(c *Config) { c.Arbitrage.MaxTradePct = 0 }, true},
		{"optimizer_zero_tolerance", func(c *Config) {
			c.Optimizer = OptimizerConfig{Enabled: true, MaxIterations: 10, Memory: 3}
		}, true},
		{"optimizer_disabled_ignored", func(c *Config) { c.Optimizer = OptimizerConfig{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
