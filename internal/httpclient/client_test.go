package httpclient

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/gas":
			w.Write([]byte(`{"fast":` + r.URL.Query().Get("v") + `}`))
		case "/bad":
			w.Write([]byte(`{not json`))
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewInstrumentedClient(
		WithBaseURL(srv.URL),
		WithProviderName("test"),
		WithHeaders(map[string]string{"X-Key": "secret"}),
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantErr    bool
	}{
		{"ok", "/gas", 0, false},
		{"not_found", "/nope", http.StatusNotFound, true},
		{"bad_json", "/bad", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Fast float64 `json:"fast"`
			}
			err := client.GetJSON(t.Context(), tt.path, url.Values{"v": {"42"}}, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}

			var se *StatusError
			if tt.wantStatus != 0 {
				if !errors.As(err, &se) || se.StatusCode != tt.wantStatus {
					t.Fatalf("err = %v, want status %d", err, tt.wantStatus)
				}
			}
			if !tt.wantErr && out.Fast != 42 {
				t.Errorf("fast = %v", out.Fast)
			}
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestGetJSON_CountsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	var seenAuth []string
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))
		status, body := http.StatusOK, `{"fast":12}`
		if strings.HasSuffix(r.URL.Path, "/down") {
			status, body = http.StatusServiceUnavailable, "maintenance"
		}
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})

	client, err := NewInstrumentedClient(
		WithBaseURL("https://station.invalid/v1"),
		WithProviderName("station"),
		WithMeterProvider(mp),
		WithRoundTripper(transport),
		WithHeaders(map[string]string{"Authorization": "key"}),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := client.GetJSON(t.Context(), "/gas", nil, nil); err != nil {
		t.Fatalf("gas: %v", err)
	}
	if err := client.GetJSON(t.Context(), "/down", nil, nil); err == nil {
		t.Fatal("expected status error")
	}

	if len(seenAuth) != 2 || seenAuth[0] != "key" || seenAuth[1] != "key" {
		t.Errorf("Authorization headers = %v", seenAuth)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(t.Context(), &rm); err != nil {
		t.Fatal(err)
	}

	outcomes := map[bool]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricRequestCounter {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("success")
				outcomes[v.AsBool()] += dp.Value
			}
		}
	}
	if outcomes[true] != 1 || outcomes[false] != 1 {
		t.Errorf("outcomes = %v", outcomes)
	}
}
