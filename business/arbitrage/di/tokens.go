// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/app"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("arbitrage.Detector")
)

// Private tokens - internal to the arbitrage module
var (
	Engine = di.NewToken[*app.Engine]("arbitrage:engine")
	Filter = di.NewToken[*app.Filter]("arbitrage:filter")
	Sinks  = di.NewToken[[]app.OpportunitySink]("arbitrage:sinks")
)

func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetFilter(c di.ServiceRegistry) *app.Filter {
	return di.GetToken(c, Filter)
}

// GetSinks returns the configured sinks in publish order.
func GetSinks(c di.ServiceRegistry) []app.OpportunitySink {
	return di.GetToken(c, Sinks)
}
