package httpclient

import (
	"maps"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type clientOptions struct {
	meterProvider  metric.MeterProvider
	providerName   string
	roundTripper   http.RoundTripper
	requestTimeout time.Duration
	headers        map[string]string
	baseURL        string
}

// ClientOption configures NewInstrumentedClient.
type ClientOption func(*clientOptions)

func buildOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		requestTimeout: defaultRequestTimeout,
		headers:        map[string]string{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// WithProviderName labels metrics and spans with the upstream name, e.g.
// "gas-station".
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) { o.providerName = name }
}

// WithRoundTripper replaces the pooled default transport. The OTEL
// transport still wraps it.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.roundTripper = rt }
}

// WithRequestTimeout bounds a whole request including the body read.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = timeout }
}

// WithHeaders adds headers sent on every request. Later calls win on
// duplicate keys.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) { maps.Copy(o.headers, headers) }
}

// WithBaseURL resolves relative request paths against url.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) { o.baseURL = url }
}
