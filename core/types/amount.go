package types

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is a non-negative integer quantity of base units (e.g. nano-tokens).
// AICF never uses floating point in settlement math; Amount wraps uint256.Int
// for fixed-width, allocation-light arithmetic across the pricing, split, and
// treasury paths.
type Amount struct {
	v uint256.Int
}

// ZeroAmount returns the additive identity.
func ZeroAmount() Amount { return Amount{} }

// NewAmount constructs an Amount from a non-negative uint64.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// NewAmountFromString constructs an Amount from a decimal string, rejecting
// negative values and values that overflow 256 bits.
func NewAmountFromString(s string) (Amount, bool) {
	big, ok := new(big.Int).SetString(s, 10)
	if !ok || big.Sign() < 0 {
		return ZeroAmount(), false
	}
	v, overflow := uint256.FromBig(big)
	if overflow {
		return ZeroAmount(), false
	}
	return Amount{v: *v}, true
}

// Uint64 returns the amount truncated to uint64; callers must ensure the
// value fits (AICF base-unit amounts are expected to stay well under 2^64
// for a single payout/escrow).
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

// String renders the amount in decimal.
func (a Amount) String() string { return a.v.Dec() }

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns max(a-b, 0) together with whether the subtraction underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return ZeroAmount(), false
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, true
}

// Mul returns a*b.
func (a Amount) Mul(b Amount) Amount {
	var out Amount
	out.v.Mul(&a.v, &b.v)
	return out
}

// DivMod returns floor(a/b) and a mod b. Division by zero yields (0, 0).
func (a Amount) DivMod(b Amount) (Amount, Amount) {
	if b.v.IsZero() {
		return ZeroAmount(), ZeroAmount()
	}
	var q, r Amount
	q.v.DivMod(&a.v, &b.v, &r.v)
	return q, r
}

// Cmp compares two amounts: -1, 0, 1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// IsEven reports whether the amount is even; parity is decided by the low
// word, so this is exact at any magnitude.
func (a Amount) IsEven() bool { return a.v.Uint64()&1 == 0 }

// FitsUint64 reports whether the amount is representable as a uint64, the
// width every ledger balance and payout line is carried in.
func (a Amount) FitsUint64() bool { return a.v.IsUint64() }

// MulDivFloor computes floor(a * num / den) without intermediate overflow,
// used for basis-point splits and per-unit pricing.
func (a Amount) MulDivFloor(num, den uint64) Amount {
	if den == 0 {
		return ZeroAmount()
	}
	var product uint256.Int
	product.Mul(&a.v, uint256.NewInt(num))
	var out Amount
	out.v.Div(&product, uint256.NewInt(den))
	return out
}

// Min returns the smaller of two amounts.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of two amounts.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
