package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
)

// PoolSpec describes a pool to construct.
type PoolSpec struct {
	ID       common.Address
	Kind     Kind
	Tokens   []common.Address
	Reserves []*big.Int // optional; zero reserves when nil
	Fee      Fee

	// Weights for KindWeighted; normalized to sum 1.
	Weights []float64
	// Amplification for KindStableSwap.
	Amplification uint64

	// MaxTradeFraction of the tendered reserve per Arbitrage call;
	// 0 selects DefaultMaxTradeFraction.
	MaxTradeFraction float64
	UpdatedAt        time.Time
}

// Ref returns the reserve-reader reference for the spec.
func (s PoolSpec) Ref() PoolRef {
	return PoolRef{ID: s.ID, Kind: s.Kind, Tokens: s.Tokens}
}

// NewPool validates spec and builds the matching CFMM variant.
func NewPool(spec PoolSpec) (CFMM, error) {
	base, err := newPoolBase(spec)
	if err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindConstantProduct:
		if len(spec.Tokens) != 2 {
			return nil, invalidPool(spec, "constant product pools hold exactly 2 tokens")
		}
		return &ConstantProduct{pool: base}, nil

	case KindWeighted:
		if len(spec.Tokens) != 2 || len(spec.Weights) != 2 {
			return nil, invalidPool(spec, "weighted pools need 2 tokens and 2 weights")
		}
		w0, w1 := spec.Weights[0], spec.Weights[1]
		if !(w0 > 0 && w1 > 0) || math.IsInf(w0+w1, 0) {
			return nil, invalidPool(spec, "weights must be positive")
		}
		sum := w0 + w1
		return &Weighted{pool: base, weights: [2]float64{w0 / sum, w1 / sum}}, nil

	case KindStableSwap:
		if len(spec.Tokens) != 2 {
			return nil, invalidPool(spec, "stableswap pools hold exactly 2 tokens")
		}
		if spec.Amplification == 0 {
			return nil, invalidPool(spec, "amplification must be positive")
		}
		return &StableSwap{pool: base, amp: spec.Amplification}, nil

	default:
		return nil, invalidPool(spec, fmt.Sprintf("unsupported kind %q", spec.Kind))
	}
}

// Factory builds pools with caller-owned defaults. The zero value uses the
// package defaults.
type Factory struct {
	// DefaultFee applies to specs whose fee denominator is zero.
	DefaultFee Fee
	// MaxTradeFraction applies to specs that leave it unset.
	MaxTradeFraction float64
}

// NewFactory returns a factory with the given defaults.
func NewFactory(defaultFee Fee, maxTradeFraction float64) *Factory {
	return &Factory{DefaultFee: defaultFee, MaxTradeFraction: maxTradeFraction}
}

// Build applies defaults and calls NewPool.
func (f *Factory) Build(spec PoolSpec) (CFMM, error) {
	if spec.Fee.Denominator == 0 && f.DefaultFee.Denominator != 0 {
		spec.Fee = f.DefaultFee
	}
	if spec.MaxTradeFraction == 0 {
		spec.MaxTradeFraction = f.MaxTradeFraction
	}
	return NewPool(spec)
}

func newPoolBase(spec PoolSpec) (*pool, error) {
	if len(spec.Tokens) < 2 {
		return nil, invalidPool(spec, "at least 2 tokens required")
	}
	seen := make(map[common.Address]struct{}, len(spec.Tokens))
	for _, t := range spec.Tokens {
		if _, dup := seen[t]; dup {
			return nil, invalidPool(spec, "duplicate token "+t.Hex())
		}
		seen[t] = struct{}{}
	}

	if err := spec.Fee.Validate(); err != nil {
		return nil, invalidPool(spec, err.Error())
	}

	maxTrade := spec.MaxTradeFraction
	if maxTrade == 0 {
		maxTrade = DefaultMaxTradeFraction
	}
	if maxTrade < 0 || maxTrade > 1 {
		return nil, invalidPool(spec, "max trade fraction must be in (0, 1]")
	}

	p := &pool{
		id:        spec.ID,
		kind:      spec.Kind,
		tokens:    append([]common.Address(nil), spec.Tokens...),
		fee:       spec.Fee,
		maxTrade:  maxTrade,
		updatedAt: spec.UpdatedAt,
	}

	reserves := spec.Reserves
	if reserves == nil {
		reserves = make([]*big.Int, len(spec.Tokens))
		for i := range reserves {
			reserves[i] = new(big.Int)
		}
	}
	if err := p.checkReserves(reserves); err != nil {
		return nil, invalidPool(spec, err.Error())
	}
	p.reserves = copyReserves(reserves)

	return p, nil
}

func invalidPool(spec PoolSpec, msg string) error {
	return apperror.New(apperror.CodeInvalidPool,
		apperror.WithContext(fmt.Sprintf("pool %s: %s", spec.ID.Hex(), msg)))
}
