package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is an immutable view of the tradable pools at one point in time.
// Pools are clones; refreshes publish a new snapshot instead of mutating one.
type Snapshot struct {
	pools   []CFMM
	byID    map[common.Address]CFMM
	byToken map[common.Address][]CFMM

	Block   uint64
	TakenAt time.Time
}

// NewSnapshot clones pools into a new snapshot.
func NewSnapshot(pools []CFMM, block uint64, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		pools:   make([]CFMM, 0, len(pools)),
		byID:    make(map[common.Address]CFMM, len(pools)),
		byToken: make(map[common.Address][]CFMM),
		Block:   block,
		TakenAt: takenAt,
	}

	for _, p := range pools {
		c := p.Clone()
		s.pools = append(s.pools, c)
		s.byID[c.ID()] = c
		for _, t := range c.Tokens() {
			s.byToken[t] = append(s.byToken[t], c)
		}
	}

	return s
}

// Pools returns every pool in the snapshot.
func (s *Snapshot) Pools() []CFMM { return s.pools }

// Len returns the number of pools.
func (s *Snapshot) Len() int { return len(s.pools) }

// Pool looks up a pool by id.
func (s *Snapshot) Pool(id common.Address) (CFMM, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// PoolsWithToken returns the pools that hold token.
func (s *Snapshot) PoolsWithToken(token common.Address) []CFMM {
	return s.byToken[token]
}

// PoolsForPair returns the pools holding both a and b.
func (s *Snapshot) PoolsForPair(a, b common.Address) []CFMM {
	var out []CFMM
	for _, p := range s.byToken[a] {
		for _, t := range p.Tokens() {
			if t == b {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Counterparts returns the tokens paired with quote in at least two pools,
// i.e. the bases for which a cross-pool trade exists.
func (s *Snapshot) Counterparts(quote common.Address) []common.Address {
	counts := make(map[common.Address]int)
	var order []common.Address
	for _, p := range s.byToken[quote] {
		for _, t := range p.Tokens() {
			if t == quote {
				continue
			}
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
	}

	out := order[:0]
	for _, t := range order {
		if counts[t] >= 2 {
			out = append(out, t)
		}
	}
	return out
}

// Network builds the optimizer network over every pool in the snapshot.
func (s *Snapshot) Network() (*Network, error) {
	return NewNetwork(s.pools)
}

// OldestUpdate returns the earliest reserve timestamp across pools.
func (s *Snapshot) OldestUpdate() time.Time {
	var oldest time.Time
	for _, p := range s.pools {
		if u := p.UpdatedAt(); oldest.IsZero() || u.Before(oldest) {
			oldest = u
		}
	}
	return oldest
}
