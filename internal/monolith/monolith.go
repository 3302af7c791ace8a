// Package monolith wires the bounded contexts into a single process: it owns
// the shared infrastructure every module resolves from the container and
// tears it down in reverse order on exit.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/internal/config"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

// Monolith is what a module sees of the process during Startup.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	// EthClient is nil when no RPC endpoint is configured (offline runs).
	EthClient() *ethclient.Client
	Tokens() *asset.Registry
	Services() di.ServiceRegistry
	// OnClose registers a release hook. Hooks run last-registered first.
	OnClose(fn func() error)
}

// Runner is the composition root's handle: a Monolith that can also start
// modules. monolith.New returns one.
type Runner interface {
	Monolith
	StartModules(ctx context.Context, modules ...Module) error
}

var _ Runner = (*app)(nil)

// Module is a bounded context. RegisterServices only declares factories;
// nothing is constructed until Startup resolves it.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Keys of the shared services registered before any module.
const (
	ServiceConfig    = "config"
	ServiceLogger    = "logger"
	ServiceEthClient = "ethClient"
	ServiceTokens    = "tokens"
)

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	ethClient *ethclient.Client
	tokens    *asset.Registry
	container di.Container

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// New dials the RPC endpoint, when one is configured, and seeds the
// container with the shared services.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	var ethClient *ethclient.Client
	if cfg.Ethereum.HTTPURL != "" {
		c, err := ethclient.DialContext(ctx, cfg.Ethereum.HTTPURL)
		if err != nil {
			return nil, fmt.Errorf("dial ethereum rpc: %w", err)
		}
		ethClient = c
	}

	a := &app{
		config:    cfg,
		logger:    log,
		ethClient: ethClient,
		tokens:    asset.DefaultRegistry(),
		container: di.NewContainer(),
	}

	a.container.Register(ServiceConfig, cfg)
	a.container.Register(ServiceLogger, log)
	a.container.Register(ServiceEthClient, ethClient)
	a.container.Register(ServiceTokens, a.tokens)

	return a, nil
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) EthClient() *ethclient.Client   { return a.ethClient }
func (a *app) Tokens() *asset.Registry        { return a.tokens }
func (a *app) Services() di.ServiceRegistry   { return a.container }

// Container exposes registration to the composition root.
func (a *app) Container() di.Container { return a.container }

func (a *app) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// RegisterModules declares every module's factories, stopping at the first
// error.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return fmt.Errorf("register %T: %w", m, err)
		}
	}
	return nil
}

// StartModules runs Startup in order. Later modules may resolve services
// of earlier ones.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return fmt.Errorf("start %T: %w", m, err)
		}
	}
	return nil
}

// Close runs the registered hooks in reverse, then drops the RPC client.
// Only the first call does any work.
func (a *app) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return errors.Join(errs...)
}
