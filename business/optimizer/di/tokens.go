// Package di contains dependency injection tokens for the optimizer context.
package di

import (
	"github.com/fd1az/cfmm-arbitrage/business/optimizer/app"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	HybridOptimizer = di.NewToken[*app.HybridOptimizer]("optimizer.HybridOptimizer")
)

// GetHybridOptimizer returns the optimizer, or nil when it is disabled.
func GetHybridOptimizer(c di.ServiceRegistry) *app.HybridOptimizer {
	return di.GetToken(c, HybridOptimizer)
}
