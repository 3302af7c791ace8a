package domain

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSpotPrices(t *testing.T) {
	// A/B at 1 B per A (reserves 100/100) and B/C at 2 B per C (50 C, 100 B).
	ab := cpmm(t, "0x1", big.NewInt(100), big.NewInt(100))
	bc := mustPool(t, PoolSpec{
		ID:       common.HexToAddress("0x2"),
		Kind:     KindConstantProduct,
		Tokens:   []common.Address{tokenB, tokenC},
		Reserves: []*big.Int{big.NewInt(100), big.NewInt(50)},
		Fee:      FeeUniswapV2,
	})
	isolated := mustPool(t, PoolSpec{
		ID:       common.HexToAddress("0x3"),
		Kind:     KindConstantProduct,
		Tokens:   []common.Address{common.HexToAddress("0xd"), common.HexToAddress("0xe")},
		Reserves: []*big.Int{big.NewInt(1), big.NewInt(1)},
		Fee:      FeeUniswapV2,
	})

	// Listed out of order: C is only reachable after A/B prices B.
	prices := SpotPrices([]CFMM{bc, isolated, ab}, tokenA)

	want := map[common.Address]float64{tokenA: 1, tokenB: 1, tokenC: 2}
	if len(prices) != len(want) {
		t.Fatalf("prices = %v", prices)
	}
	for tok, w := range want {
		if got := prices[tok]; math.Abs(got-w) > 1e-12 {
			t.Errorf("price of %s = %v, want %v", tok.Hex(), got, w)
		}
	}
}
