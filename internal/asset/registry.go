package asset

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a thread-safe set of known tokens keyed by address.
type Registry struct {
	mu        sync.RWMutex
	byAddress map[common.Address]*Token
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{byAddress: make(map[common.Address]*Token)}
}

// Register adds or replaces a token.
func (r *Registry) Register(t *Token) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAddress[t.Address()] = t
}

// Get retrieves a token by address.
func (r *Registry) Get(addr common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddress[addr]
	return t, ok
}

// Symbol returns the token symbol, or a shortened address when unknown.
func (r *Registry) Symbol(addr common.Address) string {
	if t, ok := r.Get(addr); ok {
		return t.Symbol()
	}
	h := addr.Hex()
	return fmt.Sprintf("%s…%s", h[:6], h[len(h)-4:])
}

// Format renders raw units of addr. Unknown tokens are shown with 18 decimals.
func (r *Registry) Format(addr common.Address, raw *big.Int) string {
	t, ok := r.Get(addr)
	if !ok {
		return fmt.Sprintf("%s %s", FormatUnits(raw, 18).String(), r.Symbol(addr))
	}
	return fmt.Sprintf("%s %s", FormatUnits(raw, t.Decimals()).StringFixed(6), t.Symbol())
}

// All returns every token sorted by symbol.
func (r *Registry) All() []*Token {
	r.mu.RLock()
	out := make([]*Token, 0, len(r.byAddress))
	for _, t := range r.byAddress {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol() < out[j].Symbol() })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress)
}
