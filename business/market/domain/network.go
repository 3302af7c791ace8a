package domain

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Coupling maps a pool's local token indices to global indices. It is the
// sparse form of the 0/1 matrix A_i with A_i[Global[k], k] = 1.
type Coupling struct {
	Global []int
}

// Restrict returns A^T v, the global vector seen by the pool.
func (c Coupling) Restrict(global []float64) []float64 {
	local := make([]float64, len(c.Global))
	for k, g := range c.Global {
		local[k] = global[g]
	}
	return local
}

// Lift adds A*local into global.
func (c Coupling) Lift(local, global []float64) {
	for k, g := range c.Global {
		global[g] += local[k]
	}
}

// Network is a set of pools over a global token universe.
type Network struct {
	tokens    []common.Address
	index     map[common.Address]int
	pools     []CFMM
	couplings []Coupling
}

// NewNetwork indexes the tokens of pools in ascending address order.
func NewNetwork(pools []CFMM) (*Network, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("network needs at least one pool")
	}

	index := make(map[common.Address]int)
	var tokens []common.Address
	for _, p := range pools {
		for _, t := range p.Tokens() {
			if _, ok := index[t]; !ok {
				index[t] = 0
				tokens = append(tokens, t)
			}
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return bytes.Compare(tokens[i][:], tokens[j][:]) < 0
	})
	for i, t := range tokens {
		index[t] = i
	}

	couplings := make([]Coupling, len(pools))
	for i, p := range pools {
		local := p.Tokens()
		c := Coupling{Global: make([]int, len(local))}
		for k, t := range local {
			c.Global[k] = index[t]
		}
		couplings[i] = c
	}

	return &Network{
		tokens:    tokens,
		index:     index,
		pools:     pools,
		couplings: couplings,
	}, nil
}

// Tokens returns the global token list.
func (n *Network) Tokens() []common.Address {
	out := make([]common.Address, len(n.tokens))
	copy(out, n.tokens)
	return out
}

// NumTokens returns the size of the token universe.
func (n *Network) NumTokens() int { return len(n.tokens) }

// Index returns the global index of token.
func (n *Network) Index(token common.Address) (int, bool) {
	i, ok := n.index[token]
	return i, ok
}

// Pools returns the pools in coupling order.
func (n *Network) Pools() []CFMM { return n.pools }

// Coupling returns the coupling of pool i.
func (n *Network) Coupling(i int) Coupling { return n.couplings[i] }

// Depths returns, per global token, the largest reserve held by any pool.
// Used to condition price vectors across tokens of very different scale.
func (n *Network) Depths() []float64 {
	depths := make([]float64, len(n.tokens))
	for i, p := range n.pools {
		for k, r := range p.Reserves() {
			g := n.couplings[i].Global[k]
			if f := toFloat(r); f > depths[g] {
				depths[g] = f
			}
		}
	}
	return depths
}
