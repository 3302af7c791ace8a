package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/fd1az/cfmm-arbitrage/business/market/domain"
)

// Market is a pool as the optimizer sees it: an identity and its local
// arbitrage oracle. Every market.CFMM satisfies it.
type Market interface {
	ID() common.Address
	Arbitrage(prices []float64) (market.Trade, error)
}

// Problem is a network of markets over a global token universe.
type Problem struct {
	Tokens    []common.Address
	Markets   []Market
	Couplings []market.Coupling
	// Depths scales prices per token; non-positive entries are treated as 1.
	Depths []float64
}

// FromNetwork builds the problem for a pool network.
func FromNetwork(n *market.Network) Problem {
	pools := n.Pools()
	p := Problem{
		Tokens:    n.Tokens(),
		Markets:   make([]Market, len(pools)),
		Couplings: make([]market.Coupling, len(pools)),
		Depths:    n.Depths(),
	}
	for i, pool := range pools {
		p.Markets[i] = pool
		p.Couplings[i] = n.Coupling(i)
	}
	return p
}

// NumTokens returns the size of the token universe.
func (p Problem) NumTokens() int { return len(p.Tokens) }

// Validate checks that couplings index into the token universe.
func (p Problem) Validate() error {
	if len(p.Markets) == 0 || len(p.Tokens) == 0 {
		return fmt.Errorf("problem has %d markets over %d tokens", len(p.Markets), len(p.Tokens))
	}
	if len(p.Couplings) != len(p.Markets) {
		return fmt.Errorf("%d couplings for %d markets", len(p.Couplings), len(p.Markets))
	}
	if len(p.Depths) != len(p.Tokens) {
		return fmt.Errorf("%d depths for %d tokens", len(p.Depths), len(p.Tokens))
	}
	for i, c := range p.Couplings {
		for _, g := range c.Global {
			if g < 0 || g >= len(p.Tokens) {
				return fmt.Errorf("market %d couples to token %d outside [0, %d)", i, g, len(p.Tokens))
			}
		}
	}
	return nil
}
