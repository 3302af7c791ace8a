package domain

import "fmt"

// Kind identifies a pool variant.
type Kind string

const (
	KindConstantProduct Kind = "constant_product"
	KindWeighted        Kind = "weighted"
	KindStableSwap      Kind = "stableswap"
)

// ParseKind parses a pool kind, accepting a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "constant_product", "cpmm", "uniswap_v2":
		return KindConstantProduct, nil
	case "weighted", "balancer":
		return KindWeighted, nil
	case "stableswap", "stable", "curve":
		return KindStableSwap, nil
	}
	return "", fmt.Errorf("unknown pool kind %q", s)
}

func (k Kind) String() string {
	return string(k)
}
