package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of minor units in one SOL.
const LamportsPerSOL = 1_000_000_000

const solDecimals = 9

// Lamports is an amount in ledger minor units.
type Lamports uint64

// ParseSOL converts a decimal SOL string ("0.01") to lamports. Amounts that
// cannot be represented exactly are rejected rather than rounded.
func ParseSOL(s string) (Lamports, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	minor := d.Shift(solDecimals)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, solDecimals)
	}
	n := minor.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return Lamports(n.Uint64()), nil
}

// SOL renders l as a decimal SOL string without trailing zeros.
func (l Lamports) SOL() string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(l)), -solDecimals).String()
}
