package ui

import (
	"time"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
)

// OpportunitiesMsg carries the ranked opportunities of one scan.
type OpportunitiesMsg struct {
	Results []*domain.TradeResult
}

// RouteMsg carries a multi-pool route found by the optimizer.
type RouteMsg struct {
	Route *domain.Route
}

// ScanMsg summarizes a completed scan.
type ScanMsg struct {
	Block         uint64
	Pools         int
	FailedPools   int
	Pairs         int
	Candidates    int
	Opportunities int
	Routes        int
	GasGwei       float64
	Duration      time.Duration
	// Rejections is the running total per filter reason.
	Rejections map[string]int64
}

// ScanErrorMsg reports a failed scan.
type ScanErrorMsg struct {
	Block uint64
	Err   error
}

// ConnectionStatusMsg is sent when a dependency goes up or down.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Detail    string
}

// TickMsg is sent periodically to refresh relative times.
type TickMsg struct{}
