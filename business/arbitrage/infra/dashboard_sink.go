package infra

import (
	"context"
	"math/big"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/app"
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/pkg/ui"
)

// DashboardSink forwards scan outcomes to the terminal dashboard.
type DashboardSink struct {
	send func(tea.Msg)
}

// NewDashboardSink creates a sink delivering through send, usually
// (*ui.Dashboard).Send.
func NewDashboardSink(send func(tea.Msg)) *DashboardSink {
	return &DashboardSink{send: send}
}

func (s *DashboardSink) Start(ctx context.Context) error {
	s.send(ui.ConnectionStatusMsg{Name: "detector", Connected: true})
	return nil
}

func (s *DashboardSink) Publish(ctx context.Context, results []*domain.TradeResult) error {
	s.send(ui.OpportunitiesMsg{Results: results})
	return nil
}

func (s *DashboardSink) PublishRoute(ctx context.Context, r *domain.Route) error {
	s.send(ui.RouteMsg{Route: r})
	return nil
}

func (s *DashboardSink) OnScan(ctx context.Context, report *app.ScanReport) {
	rejections := make(map[string]int64, len(report.Rejections))
	for reason, n := range report.Rejections {
		rejections[string(reason)] = n
	}

	s.send(ui.ScanMsg{
		Block:         report.Block,
		Pools:         report.Refresh.Pools,
		FailedPools:   len(report.Refresh.Failed),
		Pairs:         report.Stats.Pairs,
		Candidates:    report.Candidates,
		Opportunities: len(report.Opportunities),
		Routes:        len(report.Routes),
		GasGwei:       gwei(report.GasPriceWei),
		Duration:      report.Duration,
		Rejections:    rejections,
	})
}

func (s *DashboardSink) OnScanError(ctx context.Context, block uint64, err error) {
	s.send(ui.ScanErrorMsg{Block: block, Err: err})
}

func (s *DashboardSink) Stop() error {
	s.send(ui.ConnectionStatusMsg{Name: "detector", Connected: false, Detail: "stopped"})
	return nil
}

func gwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return f
}
