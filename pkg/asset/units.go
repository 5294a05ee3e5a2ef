package asset

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Units scales a whole-unit amount to base units: whole * 10^decimals.
func Units(whole uint64, decimals uint8) (*uint256.Int, error) {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(whole), scale)
	if overflow {
		return nil, fmt.Errorf("amount %d overflows at %d decimals", whole, decimals)
	}
	return out, nil
}

// Tokens is Units at 18 decimals. It panics on overflow and is meant for
// fixtures and constants.
func Tokens(whole uint64) *uint256.Int {
	v, err := Units(whole, DefaultDecimals)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseUnits converts a human-readable amount such as "98.9" to base units.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: overflows 256 bits", s)
	}
	return v, nil
}

// FormatUnits renders base units as a human-readable decimal string.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
