package onchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/cfmm-arbitrage/business/market/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

var (
	tokLow  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokHigh = common.HexToAddress("0x2000000000000000000000000000000000000002")

	pairAddr     = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	weightedAddr = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	stableAddr   = common.HexToAddress("0xaaaa000000000000000000000000000000000003")
	brokenAddr   = common.HexToAddress("0xaaaa000000000000000000000000000000000004")
)

// fakeChain answers reserve getters and aggregate3 from in-memory state.
type fakeChain struct {
	t    *testing.T
	abis *contractABIs

	mu        sync.Mutex
	pairs     map[common.Address][2]*big.Int
	balances  map[common.Address]map[common.Address]*big.Int
	coins     map[common.Address][]*big.Int
	calls     int
	failAggr  bool
	multicall common.Address
}

func newFakeChain(t *testing.T) *fakeChain {
	abis, err := parseABIs()
	if err != nil {
		t.Fatal(err)
	}
	return &fakeChain{
		t:    t,
		abis: abis,
		pairs: map[common.Address][2]*big.Int{
			pairAddr: {big.NewInt(1000), big.NewInt(2000)},
		},
		balances: map[common.Address]map[common.Address]*big.Int{
			weightedAddr: {tokLow: big.NewInt(800), tokHigh: big.NewInt(200)},
		},
		coins: map[common.Address][]*big.Int{
			stableAddr: {big.NewInt(5000), big.NewInt(5100)},
		},
		multicall: DefaultMulticallAddress,
	}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if *msg.To == f.multicall {
		return f.aggregate(msg.Data)
	}
	return f.single(*msg.To, msg.Data)
}

func (f *fakeChain) single(to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	sel, args := data[:4], data[4:]

	switch {
	case bytes.Equal(sel, f.abis.pair.Methods["getReserves"].ID):
		r, ok := f.pairs[to]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return f.abis.pair.Methods["getReserves"].Outputs.Pack(r[0], r[1], uint32(0))

	case bytes.Equal(sel, f.abis.weighted.Methods["getBalance"].ID):
		vals, err := f.abis.weighted.Methods["getBalance"].Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		b, ok := f.balances[to][vals[0].(common.Address)]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return f.abis.weighted.Methods["getBalance"].Outputs.Pack(b)

	case bytes.Equal(sel, f.abis.stable.Methods["balances"].ID):
		vals, err := f.abis.stable.Methods["balances"].Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		i := vals[0].(*big.Int).Int64()
		coins, ok := f.coins[to]
		if !ok || i >= int64(len(coins)) {
			return nil, errors.New("execution reverted")
		}
		return f.abis.stable.Methods["balances"].Outputs.Pack(coins[i])
	}

	return nil, fmt.Errorf("unknown selector %x", sel)
}

func (f *fakeChain) aggregate(data []byte) ([]byte, error) {
	if f.failAggr {
		return nil, errors.New("multicall unavailable")
	}

	method := f.abis.multicall.Methods["aggregate3"]
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	var calls []Call3
	if err := method.Inputs.Copy(&calls, vals); err != nil {
		return nil, err
	}

	out := make([]Result3, len(calls))
	for i, c := range calls {
		ret, err := f.single(c.Target, c.CallData)
		if err != nil {
			if !c.AllowFailure {
				return nil, err
			}
			out[i] = Result3{Success: false, ReturnData: []byte{}}
			continue
		}
		out[i] = Result3{Success: true, ReturnData: ret}
	}
	return method.Outputs.Pack(out)
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func refs() []domain.PoolRef {
	return []domain.PoolRef{
		// Listed high-then-low so the pair result must be swapped.
		{ID: pairAddr, Kind: domain.KindConstantProduct, Tokens: []common.Address{tokHigh, tokLow}},
		{ID: weightedAddr, Kind: domain.KindWeighted, Tokens: []common.Address{tokLow, tokHigh}},
		{ID: stableAddr, Kind: domain.KindStableSwap, Tokens: []common.Address{tokLow, tokHigh}},
	}
}

func wantReserves() [][]int64 {
	return [][]int64{{2000, 1000}, {800, 200}, {5000, 5100}}
}

func checkReserves(t *testing.T, got []*big.Int, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d reserves, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Int64() != want[i] {
			t.Errorf("reserve[%d] = %s, want %d", i, got[i], want[i])
		}
	}
}

func TestReader_ReadReserves(t *testing.T) {
	chain := newFakeChain(t)
	r, err := NewReader(chain, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for i, ref := range refs() {
		t.Run(ref.Kind.String(), func(t *testing.T) {
			got, err := r.ReadReserves(context.Background(), ref)
			if err != nil {
				t.Fatalf("ReadReserves: %v", err)
			}
			checkReserves(t, got, wantReserves()[i])
		})
	}
}

func TestReader_Errors(t *testing.T) {
	chain := newFakeChain(t)
	r, err := NewReader(chain, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.ReadReserves(context.Background(), domain.PoolRef{
		ID: brokenAddr, Kind: domain.KindConstantProduct, Tokens: []common.Address{tokLow, tokHigh},
	})
	if !apperror.HasCode(err, apperror.CodePoolQueryFailed) {
		t.Errorf("reverted pair: err = %v, want %s", err, apperror.CodePoolQueryFailed)
	}

	_, err = r.ReadReserves(context.Background(), domain.PoolRef{
		ID: pairAddr, Kind: domain.Kind("concentrated"), Tokens: []common.Address{tokLow, tokHigh},
	})
	if !apperror.HasCode(err, apperror.CodeInvalidPool) {
		t.Errorf("unknown kind: err = %v, want %s", err, apperror.CodeInvalidPool)
	}

	if _, err := NewReader(nil, DefaultConfig(), testLogger()); err == nil {
		t.Error("expected error for nil caller")
	}
}

func TestMulticallReader_Batch(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
	}{
		{"single_chunk", 150},
		{"one_call_per_chunk", 1},
		{"uneven_chunks", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain(t)
			cfg := DefaultConfig()
			cfg.BatchSize = tt.batchSize
			cfg.RequestsPerSecond = 0
			m, err := NewMulticallReader(chain, cfg, testLogger())
			if err != nil {
				t.Fatal(err)
			}

			in := append(refs(), domain.PoolRef{
				ID: brokenAddr, Kind: domain.KindConstantProduct, Tokens: []common.Address{tokLow, tokHigh},
			})
			results, err := m.ReadReservesBatch(context.Background(), in)
			if err != nil {
				t.Fatalf("ReadReservesBatch: %v", err)
			}
			if len(results) != len(in) {
				t.Fatalf("got %d results", len(results))
			}

			for i, want := range wantReserves() {
				if results[i].Err != nil {
					t.Fatalf("pool %d: %v", i, results[i].Err)
				}
				if results[i].Pool != in[i].ID {
					t.Errorf("pool %d id = %s", i, results[i].Pool.Hex())
				}
				checkReserves(t, results[i].Reserves, want)
			}

			broken := results[len(results)-1]
			if !apperror.HasCode(broken.Err, apperror.CodePoolQueryFailed) || broken.Reserves != nil {
				t.Errorf("broken pool result = %+v", broken)
			}
		})
	}
}

func TestMulticallReader_ChunkFailureFailsItsPools(t *testing.T) {
	chain := newFakeChain(t)
	chain.failAggr = true
	m, err := NewMulticallReader(chain, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	results, err := m.ReadReservesBatch(context.Background(), refs())
	if err != nil {
		t.Fatalf("ReadReservesBatch: %v", err)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("pool %d: expected error", i)
		}
	}
}
