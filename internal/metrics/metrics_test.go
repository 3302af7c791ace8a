package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricProvider_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := NewMetricProvider(context.Background(),
		WithServiceName("test"),
		WithRegisterer(reg),
		WithProviderConfig(ProviderCfg{Provider: PrometheusProvider}),
	)
	if err != nil {
		t.Fatalf("NewMetricProvider: %v", err)
	}
	defer mp.Shutdown(context.Background())

	counter, err := mp.Meter("test").Int64Counter("scans_total")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "scans_total") {
			found = true
		}
	}
	if !found {
		t.Error("scans_total not exported")
	}
}

func TestNewMetricProvider_UnknownProvider(t *testing.T) {
	_, err := NewMetricProvider(context.Background(),
		WithProviderConfig(ProviderCfg{Provider: "statsd"}),
	)
	if err == nil {
		t.Fatal("expected error")
	}
}
