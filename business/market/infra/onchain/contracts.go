package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticallAddress is the Multicall3 deployment shared by EVM chains.
var DefaultMulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// PairABI covers the Uniswap V2 pair reserves getter.
const PairABI = `[
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// WeightedPoolABI covers the Balancer V1 BPool balance getter.
const WeightedPoolABI = `[
	{
		"inputs": [{"internalType": "address", "name": "token", "type": "address"}],
		"name": "getBalance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// StablePoolABI covers the Curve pool coin balance getter.
const StablePoolABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "i", "type": "uint256"}],
		"name": "balances",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Multicall3ABI covers aggregate3.
const Multicall3ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "bool", "name": "allowFailure", "type": "bool"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Call3[]",
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "aggregate3",
		"outputs": [
			{
				"components": [
					{"internalType": "bool", "name": "success", "type": "bool"},
					{"internalType": "bytes", "name": "returnData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Result[]",
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// Call3 is one aggregate3 input.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 is one aggregate3 output.
type Result3 struct {
	Success    bool
	ReturnData []byte
}

type contractABIs struct {
	pair      abi.ABI
	weighted  abi.ABI
	stable    abi.ABI
	multicall abi.ABI
}

func parseABIs() (*contractABIs, error) {
	var (
		out contractABIs
		err error
	)
	for _, x := range []struct {
		dst  *abi.ABI
		json string
	}{
		{&out.pair, PairABI},
		{&out.weighted, WeightedPoolABI},
		{&out.stable, StablePoolABI},
		{&out.multicall, Multicall3ABI},
	} {
		if *x.dst, err = abi.JSON(strings.NewReader(x.json)); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
