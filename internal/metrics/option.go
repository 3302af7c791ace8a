package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Provider names a metric exporter.
type Provider string

const (
	// PrometheusProvider exposes a pull endpoint.
	PrometheusProvider Provider = "prometheus"
	// OtelCollector pushes to an OTLP/gRPC collector.
	OtelCollector Provider = "otlp"
)

// Config is assembled by the OptionFn chain passed to NewMetricProvider.
type Config struct {
	ServiceName string
	Provider    []ProviderCfg
	Registerer  prometheus.Registerer
}

// ProviderCfg selects one exporter. Endpoint, Headers and Insecure apply to
// OtelCollector only.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Collector returns the push exporter configuration for an OTLP endpoint.
func Collector(endpoint string, headers map[string]string, insecure bool) ProviderCfg {
	return ProviderCfg{
		Provider: OtelCollector,
		Endpoint: endpoint,
		Headers:  headers,
		Insecure: insecure,
	}
}

type OptionFn func(config Config) Config

// WithProviderConfig adds an exporter. Several may be active at once.
func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)
		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName
		return config
	}
}

// WithRegisterer sends Prometheus collectors to reg instead of the default
// registry. Pair it with WithGatherer on the scrape server.
func WithRegisterer(reg prometheus.Registerer) OptionFn {
	return func(config Config) Config {
		config.Registerer = reg
		return config
	}
}

// PromServerConfig configures ServePrometheusMetrics.
type PromServerConfig struct {
	port     string
	gatherer prometheus.Gatherer
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

func WithPort(port string) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.port = port
		return config
	}
}

func WithGatherer(g prometheus.Gatherer) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.gatherer = g
		return config
	}
}
