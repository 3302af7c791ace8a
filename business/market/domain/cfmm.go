package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxTradeFraction caps a single-pool trade at 20% of the tendered reserve.
const DefaultMaxTradeFraction = 0.2

var (
	ErrInvalidPrices   = errors.New("invalid price vector")
	ErrInvalidReserves = errors.New("invalid reserve vector")
)

// CFMM is a constant function market maker. Implementations are
// *ConstantProduct, *Weighted and *StableSwap; the set is closed.
type CFMM interface {
	ID() common.Address
	Kind() Kind
	Tokens() []common.Address
	// Reserves returns a copy of the current reserve vector.
	Reserves() []*big.Int
	Fee() Fee
	UpdatedAt() time.Time
	MaxTradeFraction() float64

	// TradingFunction evaluates the invariant at reserves.
	TradingFunction(reserves []*big.Int) (*big.Float, error)
	// TradingFunctionGradient returns the partial derivatives at reserves.
	TradingFunctionGradient(reserves []*big.Int) ([]*big.Float, error)
	// Arbitrage returns the net trade maximizing prices·delta against the
	// current reserves. Negative entries are tendered, positive received.
	// No profitable trade yields a zero Trade and a nil error.
	Arbitrage(prices []float64) (Trade, error)
	// UpdateReserves replaces the reserves with values read from r.
	UpdateReserves(ctx context.Context, r ReserveReader) error
	// Clone returns an independent copy.
	Clone() CFMM

	sealed()
}

// Trade is a single-pool net trade and its value at the quoting prices.
type Trade struct {
	Delta []float64
	Value float64
}

// IsZero reports whether the trade moves nothing.
func (t Trade) IsZero() bool {
	for _, d := range t.Delta {
		if d != 0 {
			return false
		}
	}
	return true
}

func zeroTrade(n int) Trade {
	return Trade{Delta: make([]float64, n)}
}

// PoolRef identifies a pool to a reserve reader.
type PoolRef struct {
	ID     common.Address
	Kind   Kind
	Tokens []common.Address
}

// ReserveReader reads a pool's reserves, index-aligned with ref.Tokens.
type ReserveReader interface {
	ReadReserves(ctx context.Context, ref PoolRef) ([]*big.Int, error)
}

// pool holds the state shared by every variant. mu guards reserves and
// updatedAt; updateMu serializes UpdateReserves on the same pool.
type pool struct {
	id       common.Address
	kind     Kind
	tokens   []common.Address
	fee      Fee
	maxTrade float64

	mu        sync.RWMutex
	reserves  []*big.Int
	updatedAt time.Time

	updateMu sync.Mutex
}

func (p *pool) ID() common.Address { return p.id }

func (p *pool) Kind() Kind { return p.kind }

func (p *pool) Fee() Fee { return p.fee }

func (p *pool) MaxTradeFraction() float64 { return p.maxTrade }

func (p *pool) Tokens() []common.Address {
	out := make([]common.Address, len(p.tokens))
	copy(out, p.tokens)
	return out
}

func (p *pool) Reserves() []*big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyReserves(p.reserves)
}

func (p *pool) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

func (p *pool) ref() PoolRef {
	return PoolRef{ID: p.id, Kind: p.kind, Tokens: p.Tokens()}
}

func (p *pool) UpdateReserves(ctx context.Context, r ReserveReader) error {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	reserves, err := r.ReadReserves(ctx, p.ref())
	if err != nil {
		return err
	}
	if err := p.checkReserves(reserves); err != nil {
		return err
	}

	p.mu.Lock()
	p.reserves = copyReserves(reserves)
	p.updatedAt = time.Now()
	p.mu.Unlock()

	return nil
}

// floatReserves returns the reserves as float64 under the read lock.
func (p *pool) floatReserves() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]float64, len(p.reserves))
	for i, r := range p.reserves {
		out[i] = toFloat(r)
	}
	return out
}

func (p *pool) checkReserves(reserves []*big.Int) error {
	if len(reserves) != len(p.tokens) {
		return fmt.Errorf("%w: pool %s has %d tokens, got %d reserves",
			ErrInvalidReserves, p.id.Hex(), len(p.tokens), len(reserves))
	}
	for i, r := range reserves {
		if r == nil || r.Sign() < 0 {
			return fmt.Errorf("%w: pool %s reserve %d is negative or missing",
				ErrInvalidReserves, p.id.Hex(), i)
		}
	}
	return nil
}

func (p *pool) checkPrices(prices []float64) error {
	if len(prices) != len(p.tokens) {
		return fmt.Errorf("%w: pool %s expects %d prices, got %d",
			ErrInvalidPrices, p.id.Hex(), len(p.tokens), len(prices))
	}
	for i, v := range prices {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: price %d is %v", ErrInvalidPrices, i, v)
		}
	}
	return nil
}

func (p *pool) clone() *pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &pool{
		id:        p.id,
		kind:      p.kind,
		tokens:    p.Tokens(),
		fee:       p.fee,
		maxTrade:  p.maxTrade,
		reserves:  copyReserves(p.reserves),
		updatedAt: p.updatedAt,
	}
}

func copyReserves(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, r := range in {
		out[i] = new(big.Int).Set(r)
	}
	return out
}

func toFloat(b *big.Int) float64 {
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}

func bigFloat(v float64) *big.Float {
	return new(big.Float).SetFloat64(v)
}
