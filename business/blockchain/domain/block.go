package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// London fork parameters.
	baseFeeChangeDenominator = 8
	elasticityMultiplier     = 2
)

// Block is the slice of a block header the detector cares about: its
// height for trigger ordering and its fee market for gas estimates.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	BaseFee    *big.Int // nil before London
	GasLimit   uint64
	GasUsed    uint64
}

// Age returns the time elapsed since the block was produced.
func (b *Block) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// NextBaseFee projects the base fee of the child block. Returns nil when the
// header carries no fee market data.
func (b *Block) NextBaseFee() *big.Int {
	if b.BaseFee == nil || b.GasLimit == 0 {
		return nil
	}

	target := b.GasLimit / elasticityMultiplier
	if target == 0 || b.GasUsed == target {
		return new(big.Int).Set(b.BaseFee)
	}

	var diff uint64
	if b.GasUsed > target {
		diff = b.GasUsed - target
	} else {
		diff = target - b.GasUsed
	}

	delta := new(big.Int).Mul(b.BaseFee, new(big.Int).SetUint64(diff))
	delta.Quo(delta, new(big.Int).SetUint64(target))
	delta.Quo(delta, big.NewInt(baseFeeChangeDenominator))

	if b.GasUsed > target {
		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}
		return delta.Add(delta, b.BaseFee)
	}
	return delta.Sub(b.BaseFee, delta)
}

// ConnectionState is the lifecycle state of a node connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// Live reports whether blocks are currently flowing.
func (s ConnectionState) Live() bool {
	return s == StateConnected
}
