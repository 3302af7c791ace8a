// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Gas       GasConfig       `mapstructure:"gas"`
	Markets   MarketsConfig   `mapstructure:"markets"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL      string        `mapstructure:"websocket_url"`
	HTTPURL           string        `mapstructure:"http_url"`
	ChainID           uint64        `mapstructure:"chain_id"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UseMulticall      bool          `mapstructure:"use_multicall"`
	MulticallAddress  string        `mapstructure:"multicall_address"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
}

// GasConfig selects the gas price oracle.
type GasConfig struct {
	Source          string        `mapstructure:"source"` // rpc, station or static
	StationURL      string        `mapstructure:"station_url"`
	StationAPIKey   string        `mapstructure:"station_api_key"` // sent as Authorization
	StationTimeout  time.Duration `mapstructure:"station_timeout"`
	StaticGwei      float64       `mapstructure:"static_gwei"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	MaxGasPriceGwei float64       `mapstructure:"max_gas_price_gwei"`
	GasPerSwap      uint64        `mapstructure:"gas_per_swap"`
}

// MarketsConfig describes where pools come from and how often they refresh.
type MarketsConfig struct {
	Source           string        `mapstructure:"source"` // file or onchain
	File             string        `mapstructure:"file"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	Concurrency      int           `mapstructure:"concurrency"`
	FeeNumerator     uint64        `mapstructure:"fee_numerator"`
	FeeDenominator   uint64        `mapstructure:"fee_denominator"`
	MaxTradeFraction float64       `mapstructure:"max_trade_fraction"`
}

// ArbitrageConfig holds detection and filtering thresholds.
type ArbitrageConfig struct {
	QuoteTokens     []string      `mapstructure:"quote_tokens"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	BlockTriggered  bool          `mapstructure:"block_triggered"`
	MinProfitWei    string        `mapstructure:"min_profit_wei"`
	MinSpreadBps    float64       `mapstructure:"min_spread_bps"`
	MaxGasPriceGwei float64       `mapstructure:"max_gas_price_gwei"`
	MaxSlippagePct  float64       `mapstructure:"max_slippage_pct"`
	MaxTradePct     float64       `mapstructure:"max_trade_pct"`
	MaxReserveAge   time.Duration `mapstructure:"max_reserve_age"`
	TopN            int           `mapstructure:"top_n"`
}

// QuoteTokenAddresses returns the quote tokens as addresses.
func (c *ArbitrageConfig) QuoteTokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.QuoteTokens))
	for _, t := range c.QuoteTokens {
		out = append(out, common.HexToAddress(t))
	}
	return out
}

// MinProfit returns MinProfitWei as an integer.
func (c *ArbitrageConfig) MinProfit() *big.Int {
	v, ok := new(big.Int).SetString(c.MinProfitWei, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// MinSpreadBpsDecimal returns the spread threshold as decimal.Decimal.
func (c *ArbitrageConfig) MinSpreadBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinSpreadBps)
}

// MaxSlippagePctDecimal returns the slippage threshold as decimal.Decimal.
func (c *ArbitrageConfig) MaxSlippagePctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxSlippagePct)
}

// MaxTradePctDecimal returns the liquidity fraction cap as decimal.Decimal.
func (c *ArbitrageConfig) MaxTradePctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTradePct)
}

// OptimizerConfig configures the multi-pool optimizer pass.
type OptimizerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxIterations int           `mapstructure:"max_iterations"`
	Tolerance     float64       `mapstructure:"tolerance"`
	Memory        int           `mapstructure:"memory"`
	Workers       int           `mapstructure:"workers"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	Kappa         float64       `mapstructure:"kappa"`
}

// SinksConfig selects where ranked opportunities are published.
type SinksConfig struct {
	Console      bool   `mapstructure:"console"`
	WebSocketURL string `mapstructure:"websocket_url"`
	JournalPath  string `mapstructure:"journal_path"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	// MetricsEndpoint pushes metrics to an OTLP collector alongside the
	// Prometheus scrape endpoint.
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
	PrometheusPort  int    `mapstructure:"prometheus_port"`
	HealthPort      int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "ARB_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Gas
	v.BindEnv("gas.source", "ARB_GAS_SOURCE")
	v.BindEnv("gas.station_url", "ARB_GAS_STATION_URL")
	v.BindEnv("gas.station_api_key", "ARB_GAS_STATION_API_KEY")

	// Markets
	v.BindEnv("markets.source", "ARB_MARKETS_SOURCE")
	v.BindEnv("markets.file", "ARB_MARKETS_FILE")

	// Arbitrage
	v.BindEnv("arbitrage.quote_tokens", "ARB_QUOTE_TOKENS")
	v.BindEnv("arbitrage.min_profit_wei", "ARB_MIN_PROFIT_WEI")

	// Sinks
	v.BindEnv("sinks.websocket_url", "ARB_SINK_WS_URL")
	v.BindEnv("sinks.journal_path", "ARB_JOURNAL_PATH")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "ARB_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
	v.BindEnv("telemetry.metrics_endpoint", "ARB_OTEL_METRICS_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
}

// WETH on mainnet.
const defaultQuoteToken = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cfmm-arbitrage")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.requests_per_second", 20)
	v.SetDefault("ethereum.burst", 5)
	v.SetDefault("ethereum.use_multicall", true)
	v.SetDefault("ethereum.multicall_address", "0xcA11bde05977b3631167028862bE2a173976CA11")
	v.SetDefault("ethereum.call_timeout", "10s")

	v.SetDefault("gas.source", "rpc")
	v.SetDefault("gas.static_gwei", 30)
	v.SetDefault("gas.cache_ttl", "12s")
	v.SetDefault("gas.station_timeout", "5s")
	v.SetDefault("gas.max_gas_price_gwei", 500)
	v.SetDefault("gas.gas_per_swap", 150_000)

	v.SetDefault("markets.source", "file")
	v.SetDefault("markets.file", "markets.yaml")
	v.SetDefault("markets.refresh_interval", "12s")
	v.SetDefault("markets.concurrency", 8)
	v.SetDefault("markets.fee_numerator", 3)
	v.SetDefault("markets.fee_denominator", 1000)
	v.SetDefault("markets.max_trade_fraction", 0.2)

	v.SetDefault("arbitrage.quote_tokens", []string{defaultQuoteToken})
	v.SetDefault("arbitrage.scan_interval", "12s")
	v.SetDefault("arbitrage.block_triggered", false)
	v.SetDefault("arbitrage.min_profit_wei", "0")
	v.SetDefault("arbitrage.min_spread_bps", 0)
	v.SetDefault("arbitrage.max_gas_price_gwei", 200)
	v.SetDefault("arbitrage.max_slippage_pct", 5)
	v.SetDefault("arbitrage.max_trade_pct", 20)
	v.SetDefault("arbitrage.max_reserve_age", "1m")
	v.SetDefault("arbitrage.top_n", 20)

	v.SetDefault("optimizer.enabled", false)
	v.SetDefault("optimizer.max_iterations", 200)
	v.SetDefault("optimizer.tolerance", 1e-6)
	v.SetDefault("optimizer.memory", 8)
	v.SetDefault("optimizer.workers", 4)
	v.SetDefault("optimizer.max_duration", "2s")
	v.SetDefault("optimizer.kappa", 1.0)

	v.SetDefault("sinks.console", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "cfmm-arbitrage")
	v.SetDefault("telemetry.trace_provider", "EMPTY_PROVIDER")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8080)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Markets.Source {
	case "file":
		if c.Markets.File == "" {
			return fmt.Errorf("markets.file is required for the file source")
		}
	case "onchain":
		if c.Ethereum.HTTPURL == "" {
			return fmt.Errorf("ethereum.http_url is required for the onchain source")
		}
		if c.Markets.File == "" {
			return fmt.Errorf("markets.file lists the pools to read on chain")
		}
	default:
		return fmt.Errorf("invalid markets.source: %q", c.Markets.Source)
	}
	if c.Markets.FeeDenominator == 0 || c.Markets.FeeNumerator >= c.Markets.FeeDenominator {
		return fmt.Errorf("invalid default fee %d/%d", c.Markets.FeeNumerator, c.Markets.FeeDenominator)
	}
	if c.Markets.MaxTradeFraction <= 0 || c.Markets.MaxTradeFraction > 1 {
		return fmt.Errorf("markets.max_trade_fraction must be in (0, 1]")
	}

	switch c.Gas.Source {
	case "rpc":
		if c.Ethereum.HTTPURL == "" {
			return fmt.Errorf("ethereum.http_url is required for the rpc gas source")
		}
	case "station":
		if c.Gas.StationURL == "" {
			return fmt.Errorf("gas.station_url is required for the station gas source")
		}
	case "static":
		if c.Gas.StaticGwei < 0 {
			return fmt.Errorf("gas.static_gwei must be non-negative")
		}
	default:
		return fmt.Errorf("invalid gas.source: %q", c.Gas.Source)
	}

	if len(c.Arbitrage.QuoteTokens) == 0 {
		return fmt.Errorf("arbitrage.quote_tokens cannot be empty")
	}
	for _, t := range c.Arbitrage.QuoteTokens {
		if !common.IsHexAddress(t) {
			return fmt.Errorf("invalid quote token: %s", t)
		}
	}
	if _, ok := new(big.Int).SetString(c.Arbitrage.MinProfitWei, 10); !ok {
		return fmt.Errorf("invalid arbitrage.min_profit_wei: %q", c.Arbitrage.MinProfitWei)
	}
	if c.Arbitrage.MaxSlippagePct < 0 || c.Arbitrage.MaxSlippagePct > 100 {
		return fmt.Errorf("arbitrage.max_slippage_pct must be in [0, 100]")
	}
	if c.Arbitrage.MaxTradePct <= 0 || c.Arbitrage.MaxTradePct > 100 {
		return fmt.Errorf("arbitrage.max_trade_pct must be in (0, 100]")
	}
	if c.Arbitrage.BlockTriggered && c.Ethereum.WebSocketURL == "" && c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("arbitrage.block_triggered needs an ethereum endpoint")
	}
	if !c.Arbitrage.BlockTriggered && c.Arbitrage.ScanInterval <= 0 {
		return fmt.Errorf("arbitrage.scan_interval must be positive")
	}

	if c.Optimizer.Enabled {
		if c.Optimizer.MaxIterations <= 0 {
			return fmt.Errorf("optimizer.max_iterations must be positive")
		}
		if c.Optimizer.Tolerance <= 0 {
			return fmt.Errorf("optimizer.tolerance must be positive")
		}
		if c.Optimizer.Memory <= 0 {
			return fmt.Errorf("optimizer.memory must be positive")
		}
	}

	return nil
}
