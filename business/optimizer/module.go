// Package optimizer implements the multi-pool optimizer bounded context.
package optimizer

import (
	"context"

	"github.com/fd1az/cfmm-arbitrage/business/optimizer/app"
	optimizerDI "github.com/fd1az/cfmm-arbitrage/business/optimizer/di"
	"github.com/fd1az/cfmm-arbitrage/business/optimizer/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/monolith"
)

// Module implements the optimizer bounded context.
type Module struct{}

// RegisterServices registers the optimizer. A disabled optimizer resolves
// to nil so consumers can skip the multi-pool pass.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, optimizerDI.HybridOptimizer, func(sr di.ServiceRegistry) *app.HybridOptimizer {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)

		if !cfg.Optimizer.Enabled {
			return nil
		}

		o, err := app.NewHybridOptimizer(ConfigFrom(cfg.Optimizer), log)
		if err != nil {
			panic("failed to create optimizer: " + err.Error())
		}
		return o
	})

	return nil
}

// Startup logs the optimizer settings.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	o := optimizerDI.GetHybridOptimizer(mono.Services())
	if o == nil {
		mono.Logger().Info(ctx, "optimizer disabled")
		return nil
	}

	cfg := o.Config()
	mono.Logger().Info(ctx, "optimizer module started",
		"max_iterations", cfg.MaxIterations,
		"tolerance", cfg.Tolerance,
		"memory", cfg.Memory,
		"workers", cfg.Workers,
	)
	return nil
}

// ConfigFrom maps file settings onto the optimizer config, keeping defaults
// for zero values.
func ConfigFrom(c config.OptimizerConfig) domain.Config {
	out := domain.DefaultConfig()
	if c.MaxIterations > 0 {
		out.MaxIterations = c.MaxIterations
	}
	if c.Tolerance > 0 {
		out.Tolerance = c.Tolerance
	}
	if c.Memory > 0 {
		out.Memory = c.Memory
	}
	if c.Workers > 0 {
		out.Workers = c.Workers
	}
	if c.MaxDuration > 0 {
		out.MaxDuration = c.MaxDuration
	}
	return out
}
