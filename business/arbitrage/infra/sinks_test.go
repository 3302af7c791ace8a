package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/websocket"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/app"
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/pkg/ui"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func sampleResult() *domain.TradeResult {
	return &domain.TradeResult{
		ID:                 uuid.MustParse("6f1c2a9e-0000-4000-8000-000000000001"),
		Source:             domain.SourceAnalytical,
		BuyPool:            common.HexToAddress("0x1"),
		SellPool:           common.HexToAddress("0x2"),
		BaseToken:          common.HexToAddress("0xaa"),
		QuoteToken:         asset.AddrWETH,
		InputAmount:        eth(20),
		IntermediateAmount: eth(16),
		OutputAmount:       eth(28),
		GrossProfit:        eth(8),
		GasUnits:           300_000,
		GasPriceWei:        big.NewInt(30e9),
		GasCost:            big.NewInt(9e15),
		NetProfit:          new(big.Int).Sub(eth(8), big.NewInt(9e15)),
		ProfitPct:          decimal.RequireFromString("39.955"),
		ProfitPctDefined:   true,
		SpreadBps:          decimal.NewFromInt(10000),
		PriceImpactPct:     decimal.RequireFromString("1.5"),
		TradePct:           decimal.NewFromInt(20),
		Clamped:            true,
		Block:              123,
		DetectedAt:         time.Unix(1_700_000_000, 0),
	}
}

func sampleRoute() *domain.Route {
	return &domain.Route{
		ID:         uuid.MustParse("6f1c2a9e-0000-4000-8000-000000000002"),
		QuoteToken: asset.AddrWETH,
		Tokens:     []common.Address{common.HexToAddress("0xaa"), asset.AddrWETH},
		Prices:     []float64{1.5, 1},
		NetTrade:   []float64{0, 1e15},
		Legs: []domain.RouteLeg{{
			Pool:   common.HexToAddress("0x1"),
			Tokens: []common.Address{common.HexToAddress("0xaa"), asset.AddrWETH},
			Delta:  []float64{-1e18, 1.5e18},
		}},
		ValueQuote:   1e15,
		Converged:    false,
		Reason:       "max_iterations",
		Iterations:   200,
		GradientNorm: math.Inf(1),
		Block:        123,
		DetectedAt:   time.Unix(1_700_000_000, 0),
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, asset.DefaultRegistry())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Publish(ctx, []*domain.TradeResult{sampleResult()}); err != nil {
		t.Fatal(err)
	}
	if err := s.PublishRoute(ctx, sampleRoute()); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"ARBITRAGE OPPORTUNITY #1 (analytical)",
		"Block:          #123",
		"20.000000 WETH",
		"(capped)",
		"39.9550%",
		"MULTI-POOL ROUTE (1 legs, max_iterations after 200 iterations)",
		"CFMM Arbitrage Stopped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestToOpportunityJSON(t *testing.T) {
	r := sampleResult()
	w := ToOpportunityJSON(r)
	if w.NetProfit != "7991000000000000000" || w.ProfitPct == nil || *w.ProfitPct != "39.955" {
		t.Errorf("wire = %+v", w)
	}

	r.ProfitPctDefined = false
	if w := ToOpportunityJSON(r); w.ProfitPct != nil {
		t.Errorf("undefined percent should be null, got %q", *w.ProfitPct)
	}

	if _, err := json.Marshal(ToRouteJSON(sampleRoute())); err != nil {
		t.Errorf("route with infinite gradient norm must encode: %v", err)
	}
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(filepath.Join(t.TempDir(), "data", "journal.db"), logger.NewDiscard())

	if err := j.Publish(ctx, nil); !apperror.HasCode(err, apperror.CodeJournalWriteError) {
		t.Fatalf("publish before start err = %v", err)
	}

	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Stop()

	first := sampleResult()
	second := sampleResult()
	second.ID = uuid.New()

	if err := j.Publish(ctx, []*domain.TradeResult{first, second}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Republishing the same ids is a no-op.
	if err := j.Publish(ctx, []*domain.TradeResult{first}); err != nil {
		t.Fatalf("Publish again: %v", err)
	}
	if err := j.PublishRoute(ctx, sampleRoute()); err != nil {
		t.Fatalf("PublishRoute: %v", err)
	}

	n, err := j.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	var payload string
	if err := j.db.QueryRowContext(ctx, `SELECT payload FROM opportunities WHERE id = ?`, first.ID.String()).Scan(&payload); err != nil {
		t.Fatal(err)
	}
	var w OpportunityJSON
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		t.Fatal(err)
	}
	if w.InputAmount != eth(20).String() || w.Block != 123 {
		t.Errorf("payload = %+v", w)
	}
}

func TestWebSocketSink(t *testing.T) {
	received := make(chan Envelope, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				received <- env
			}
		}
	}))
	defer server.Close()

	s, err := NewWebSocketSink("ws"+strings.TrimPrefix(server.URL, "http"), logger.NewDiscard())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if !s.Connected() {
		t.Fatal("expected connected sink")
	}
	if err := s.Publish(ctx, []*domain.TradeResult{sampleResult()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := s.PublishRoute(ctx, sampleRoute()); err != nil {
		t.Fatalf("PublishRoute: %v", err)
	}

	for _, want := range []string{TypeOpportunities, TypeRoute} {
		select {
		case env := <-received:
			if env.Type != want {
				t.Errorf("type = %q, want %q", env.Type, want)
			}
		case <-ctx.Done():
			t.Fatalf("no %s message", want)
		}
	}
}

func TestWebSocketSink_NotConnected(t *testing.T) {
	s, err := NewWebSocketSink("ws://127.0.0.1:1/none", logger.NewDiscard())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	err = s.Publish(context.Background(), []*domain.TradeResult{sampleResult()})
	if !apperror.HasCode(err, apperror.CodeWebSocketClosed) {
		t.Errorf("err = %v, want websocket closed", err)
	}
}

func TestDashboardSink(t *testing.T) {
	var got []tea.Msg
	s := NewDashboardSink(func(msg tea.Msg) { got = append(got, msg) })
	ctx := context.Background()

	_ = s.Start(ctx)
	_ = s.Publish(ctx, []*domain.TradeResult{sampleResult()})
	s.OnScan(ctx, &app.ScanReport{
		Block:       9,
		GasPriceWei: big.NewInt(25e9),
		Candidates:  4,
		Rejections:  map[domain.RejectReason]int64{domain.RejectBelowMinProfit: 3},
	})
	s.OnScanError(ctx, 10, errors.New("boom"))
	_ = s.Stop()

	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	scan, ok := got[2].(ui.ScanMsg)
	if !ok {
		t.Fatalf("message 2 is %T", got[2])
	}
	if scan.Block != 9 || scan.GasGwei != 25 || scan.Candidates != 4 || scan.Rejections["below_min_profit"] != 3 {
		t.Errorf("scan = %+v", scan)
	}
	if e, ok := got[3].(ui.ScanErrorMsg); !ok || e.Block != 10 {
		t.Errorf("message 3 = %#v", got[3])
	}
}
