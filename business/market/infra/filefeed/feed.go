// Package filefeed reads pool definitions, and optionally their reserves,
// from a YAML file.
package filefeed

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/fd1az/cfmm-arbitrage/business/market/app"
	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
)

var (
	_ app.MarketsFeed      = (*Feed)(nil)
	_ app.TokenCatalog     = (*Feed)(nil)
	_ app.MarketDataSource = (*Feed)(nil)
)

// File is the on-disk document.
type File struct {
	Tokens []TokenEntry `yaml:"tokens"`
	Pools  []PoolEntry  `yaml:"pools"`
}

// TokenEntry declares token metadata for display.
type TokenEntry struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolEntry declares one pool. Reserves are base-10 raw amounts aligned
// with Tokens; when present the feed can replay them as market data.
type PoolEntry struct {
	ID               string    `yaml:"id"`
	Kind             string    `yaml:"kind"`
	Tokens           []string  `yaml:"tokens"`
	Reserves         []string  `yaml:"reserves"`
	Fee              *FeeEntry `yaml:"fee"`
	Weights          []float64 `yaml:"weights"`
	Amplification    uint64    `yaml:"amplification"`
	MaxTradeFraction float64   `yaml:"max_trade_fraction"`
}

// FeeEntry is a rational fee.
type FeeEntry struct {
	Numerator   uint64 `yaml:"numerator"`
	Denominator uint64 `yaml:"denominator"`
}

// Feed serves markets from a YAML file. The file is re-read on every
// Markets call so edits take effect on the next load.
type Feed struct {
	path string
	read func(string) ([]byte, error)
	now  func() time.Time

	mu       sync.RWMutex
	tokens   []*asset.Token
	reserves map[common.Address][]*big.Int
}

// New returns a feed for path.
func New(path string) *Feed {
	return &Feed{
		path:     path,
		read:     os.ReadFile,
		now:      time.Now,
		reserves: make(map[common.Address][]*big.Int),
	}
}

// NewFromBytes returns a feed over an in-memory document.
func NewFromBytes(data []byte) *Feed {
	f := New("<memory>")
	f.read = func(string) ([]byte, error) { return data, nil }
	return f
}

// Markets parses the file and returns its pool definitions.
func (f *Feed) Markets(ctx context.Context) ([]domain.PoolSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := f.read(f.path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMarketsFeedFailed, "read "+f.path)
	}

	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMarketsFeedFailed, "parse "+f.path)
	}

	tokens := make([]*asset.Token, 0, len(doc.Tokens))
	for _, t := range doc.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, apperror.Validation(apperror.CodeInvalidInput, "token address "+t.Address)
		}
		tok, err := asset.NewToken(common.HexToAddress(t.Address), t.Symbol, t.Decimals)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "token "+t.Symbol)
		}
		tokens = append(tokens, tok)
	}

	now := f.now()
	specs := make([]domain.PoolSpec, 0, len(doc.Pools))
	reserves := make(map[common.Address][]*big.Int, len(doc.Pools))
	for i, p := range doc.Pools {
		spec, err := p.toSpec(now)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidPool, fmt.Sprintf("pools[%d]", i))
		}
		if spec.Reserves != nil {
			reserves[spec.ID] = spec.Reserves
		}
		specs = append(specs, spec)
	}

	f.mu.Lock()
	f.tokens = tokens
	f.reserves = reserves
	f.mu.Unlock()

	return specs, nil
}

// Tokens returns the token metadata from the last Markets call.
func (f *Feed) Tokens() []*asset.Token {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*asset.Token, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// ReadReserves replays the static reserves declared for ref.ID.
func (f *Feed) ReadReserves(ctx context.Context, ref domain.PoolRef) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	reserves, ok := f.reserves[ref.ID]
	f.mu.RUnlock()

	if !ok {
		return nil, apperror.New(apperror.CodePoolQueryFailed,
			apperror.WithContext("no static reserves for pool "+ref.ID.Hex()))
	}

	out := make([]*big.Int, len(reserves))
	for i, r := range reserves {
		out[i] = new(big.Int).Set(r)
	}
	return out, nil
}

func (p PoolEntry) toSpec(now time.Time) (domain.PoolSpec, error) {
	if !common.IsHexAddress(p.ID) {
		return domain.PoolSpec{}, fmt.Errorf("invalid pool id %q", p.ID)
	}

	kind, err := domain.ParseKind(p.Kind)
	if err != nil {
		return domain.PoolSpec{}, err
	}

	tokens := make([]common.Address, len(p.Tokens))
	for i, t := range p.Tokens {
		if !common.IsHexAddress(t) {
			return domain.PoolSpec{}, fmt.Errorf("invalid token address %q", t)
		}
		tokens[i] = common.HexToAddress(t)
	}

	spec := domain.PoolSpec{
		ID:               common.HexToAddress(p.ID),
		Kind:             kind,
		Tokens:           tokens,
		Weights:          p.Weights,
		Amplification:    p.Amplification,
		MaxTradeFraction: p.MaxTradeFraction,
	}

	if p.Fee != nil {
		spec.Fee = domain.Fee{Numerator: p.Fee.Numerator, Denominator: p.Fee.Denominator}
	}

	if len(p.Reserves) > 0 {
		if len(p.Reserves) != len(tokens) {
			return domain.PoolSpec{}, fmt.Errorf("%d reserves for %d tokens", len(p.Reserves), len(tokens))
		}
		spec.Reserves = make([]*big.Int, len(p.Reserves))
		for i, s := range p.Reserves {
			r, ok := new(big.Int).SetString(s, 10)
			if !ok || r.Sign() < 0 {
				return domain.PoolSpec{}, fmt.Errorf("invalid reserve %q", s)
			}
			spec.Reserves[i] = r
		}
		spec.UpdatedAt = now
	}

	return spec, nil
}
