package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RouteLeg is one pool's part of a multi-pool route, in raw token units.
// Negative entries are tendered to the pool.
type RouteLeg struct {
	Pool   common.Address
	Tokens []common.Address
	Delta  []float64
}

// Route is the optimizer's network-wide trade at clearing prices.
type Route struct {
	ID         uuid.UUID
	QuoteToken common.Address
	Tokens     []common.Address
	// Prices are clearing prices per raw unit, in quote units.
	Prices   []float64
	NetTrade []float64
	Legs     []RouteLeg
	// ValueQuote is NetTrade valued at the reference prices, in raw quote
	// units.
	ValueQuote float64

	Converged    bool
	Reason       string
	Iterations   int
	GradientNorm float64
	Block        uint64
	DetectedAt   time.Time
}
