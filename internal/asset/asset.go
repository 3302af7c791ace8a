// Package asset holds ERC-20 token metadata and raw amount formatting.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the display metadata of an ERC-20 token. The address is its
// identity; the symbol is only for display.
type Token struct {
	address  common.Address
	symbol   string
	decimals uint8
}

// NewToken creates token metadata.
func NewToken(address common.Address, symbol string, decimals uint8) (*Token, error) {
	if symbol == "" {
		return nil, fmt.Errorf("asset: empty symbol for %s", address.Hex())
	}
	if decimals > 36 {
		return nil, fmt.Errorf("asset: suspicious decimals %d for %s", decimals, symbol)
	}
	return &Token{address: address, symbol: symbol, decimals: decimals}, nil
}

// MustNewToken is NewToken for package level declarations.
func MustNewToken(address common.Address, symbol string, decimals uint8) *Token {
	t, err := NewToken(address, symbol, decimals)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

func (t *Token) String() string {
	return t.symbol
}
