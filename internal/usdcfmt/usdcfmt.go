// Package usdcfmt formats USDC amounts for display.
//
// Indexed amounts are kept in the token's smallest unit (6 decimals,
// 1 USDC = 1,000,000 units) as big.Int and only converted to decimal
// strings at the API boundary.
package usdcfmt

import "math/big"

const Decimals = 6

var unit = big.NewInt(1_000_000)

// Units renders a smallest-unit amount as a plain integer string
// ("1000000"). Nil renders as "0".
func Units(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// Decimal renders a smallest-unit amount as a human-readable decimal
// string with exactly six fractional digits ("1.500000").
func Decimal(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// USD converts a smallest-unit amount to an approximate float dollar
// value. Only for coarse display; precision is lost above 2^53 units.
func USD(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(amount, unit).Float64()
	return f
}
