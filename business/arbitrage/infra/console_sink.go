package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
)

const rule = "================================================================================"

// ConsoleSink prints opportunities and routes as text blocks.
type ConsoleSink struct {
	out    io.Writer
	tokens *asset.Registry
	mu     sync.Mutex
}

// NewConsoleSink creates a ConsoleSink writing to out, or stdout when nil.
func NewConsoleSink(out io.Writer, tokens *asset.Registry) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	if tokens == nil {
		tokens = asset.DefaultRegistry()
	}
	return &ConsoleSink{out: out, tokens: tokens}
}

// Start prints the banner.
func (s *ConsoleSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, "CFMM Arbitrage Started")
	fmt.Fprintln(s.out, "======================")
	return nil
}

// Publish prints every opportunity in rank order.
func (s *ConsoleSink) Publish(ctx context.Context, results []*domain.TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range results {
		s.printOpportunity(i+1, r)
	}
	return nil
}

func (s *ConsoleSink) printOpportunity(rank int, r *domain.TradeResult) {
	quote, base := r.QuoteToken, r.BaseToken

	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, rule)
	fmt.Fprintf(s.out, "ARBITRAGE OPPORTUNITY #%d (%s)\n", rank, r.Source)
	fmt.Fprintln(s.out, rule)
	fmt.Fprintf(s.out, "Block:          #%d\n", r.Block)
	fmt.Fprintf(s.out, "Detected:       %s\n", r.DetectedAt.Format(time.RFC3339))
	fmt.Fprintf(s.out, "Pair:           %s/%s\n", s.tokens.Symbol(base), s.tokens.Symbol(quote))
	fmt.Fprintf(s.out, "Buy pool:       %s\n", r.BuyPool.Hex())
	fmt.Fprintf(s.out, "Sell pool:      %s\n", r.SellPool.Hex())
	fmt.Fprintf(s.out, "Spread:         %s bps\n", r.SpreadBps.StringFixed(2))
	fmt.Fprintln(s.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(s.out, "TRADE")
	fmt.Fprintf(s.out, "  In:           %s\n", s.tokens.Format(quote, r.InputAmount))
	fmt.Fprintf(s.out, "  Via:          %s\n", s.tokens.Format(base, r.IntermediateAmount))
	fmt.Fprintf(s.out, "  Out:          %s\n", s.tokens.Format(quote, r.OutputAmount))
	fmt.Fprintf(s.out, "  Size:         %s%% of buy pool", r.TradePct.StringFixed(2))
	if r.Clamped {
		fmt.Fprint(s.out, " (capped)")
	}
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "  Impact:       %s%%\n", r.PriceImpactPct.StringFixed(4))
	fmt.Fprintln(s.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(s.out, "PROFIT")
	fmt.Fprintf(s.out, "  Gross:        %s\n", s.tokens.Format(quote, r.GrossProfit))
	fmt.Fprintf(s.out, "  Gas:          %s (%d units)\n", s.tokens.Format(quote, r.GasCost), r.GasUnits)
	if r.ProfitPctDefined {
		fmt.Fprintf(s.out, "  Net:          %s (%s%%)\n", s.tokens.Format(quote, r.NetProfit), r.ProfitPct.StringFixed(4))
	} else {
		fmt.Fprintf(s.out, "  Net:          %s\n", s.tokens.Format(quote, r.NetProfit))
	}
	fmt.Fprintln(s.out, rule)
}

// PublishRoute prints an optimizer route.
func (s *ConsoleSink) PublishRoute(ctx context.Context, r *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, rule)
	fmt.Fprintf(s.out, "MULTI-POOL ROUTE (%d legs, %s after %d iterations)\n", len(r.Legs), r.Reason, r.Iterations)
	fmt.Fprintln(s.out, rule)
	fmt.Fprintf(s.out, "Block:          #%d\n", r.Block)
	fmt.Fprintf(s.out, "Value:          %.6g %s raw units\n", r.ValueQuote, s.tokens.Symbol(r.QuoteToken))
	for _, leg := range r.Legs {
		fmt.Fprintf(s.out, "  %s", leg.Pool.Hex())
		for j, t := range leg.Tokens {
			fmt.Fprintf(s.out, "  %s %+.6g", s.tokens.Symbol(t), leg.Delta[j])
		}
		fmt.Fprintln(s.out)
	}
	fmt.Fprintln(s.out, rule)
	return nil
}

// Stop prints the shutdown line.
func (s *ConsoleSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, "CFMM Arbitrage Stopped")
	return nil
}
