package market

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// expScale is the mantissa of rates, factors and the borrow index.
	expScale = mustBigInt("1000000000000000000")
	// doubleScale is the mantissa of the supply index.
	doubleScale = mustBigInt("1000000000000000000000000000000000000")

	// MaxAmount is the sentinel meaning "as much as possible" for borrow and
	// "everything owed" for repay.
	MaxAmount = new(uint256.Int).SetAllOne().ToBig()
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Exp returns v scaled to the 1e18 mantissa.
func Exp(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), expScale)
}

// ExpScale returns a copy of the 1e18 mantissa.
func ExpScale() *big.Int { return new(big.Int).Set(expScale) }

// DoubleScale returns a copy of the 1e36 mantissa.
func DoubleScale() *big.Int { return new(big.Int).Set(doubleScale) }

func isMax(v *big.Int) bool {
	return v != nil && v.Cmp(MaxAmount) == 0
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// The ledger values live in the unsigned 256-bit domain. The helpers below
// report false when an operand or result leaves it.

func toU256(v *big.Int) (*uint256.Int, bool) {
	if v == nil {
		return new(uint256.Int), true
	}
	if v.Sign() < 0 {
		return nil, false
	}
	out, overflow := uint256.FromBig(v)
	return out, !overflow
}

func addU256(a, b *big.Int) (*big.Int, bool) {
	x, ok := toU256(a)
	if !ok {
		return nil, false
	}
	y, ok := toU256(b)
	if !ok {
		return nil, false
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, false
	}
	return sum.ToBig(), true
}

func subU256(a, b *big.Int) (*big.Int, bool) {
	x, ok := toU256(a)
	if !ok {
		return nil, false
	}
	y, ok := toU256(b)
	if !ok {
		return nil, false
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, false
	}
	return diff.ToBig(), true
}

func mulU256(a, b *big.Int) (*big.Int, bool) {
	x, ok := toU256(a)
	if !ok {
		return nil, false
	}
	y, ok := toU256(b)
	if !ok {
		return nil, false
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, false
	}
	return product.ToBig(), true
}

func divU256(a, b *big.Int) (*big.Int, bool) {
	if b == nil || b.Sign() == 0 {
		return nil, false
	}
	x, ok := toU256(a)
	if !ok {
		return nil, false
	}
	y, ok := toU256(b)
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Div(x, y).ToBig(), true
}

// mulScalarTruncate computes floor(a * scalar / 1e18).
func mulScalarTruncate(a, scalar *big.Int) (*big.Int, bool) {
	product, ok := mulU256(a, scalar)
	if !ok {
		return nil, false
	}
	return divU256(product, expScale)
}

// mulScalarTruncateAdd computes floor(a * scalar / 1e18) + addend.
func mulScalarTruncateAdd(a, scalar, addend *big.Int) (*big.Int, bool) {
	truncated, ok := mulScalarTruncate(a, scalar)
	if !ok {
		return nil, false
	}
	return addU256(truncated, addend)
}

// divScalarByExp computes floor(a * 1e18 / exp).
func divScalarByExp(a, exp *big.Int) (*big.Int, bool) {
	scaled, ok := mulU256(a, expScale)
	if !ok {
		return nil, false
	}
	return divU256(scaled, exp)
}

// divScalarByExpCeil computes ceil(a * 1e18 / exp).
func divScalarByExpCeil(a, exp *big.Int) (*big.Int, bool) {
	scaled, ok := mulU256(a, expScale)
	if !ok || exp == nil || exp.Sign() <= 0 {
		return nil, false
	}
	quotient, ok := divU256(scaled, exp)
	if !ok {
		return nil, false
	}
	if new(big.Int).Mod(scaled, exp).Sign() == 0 {
		return quotient, true
	}
	return addU256(quotient, big.NewInt(1))
}

// fraction computes floor(a * b / c) inside the 256-bit domain.
func fraction(a, b, c *big.Int) (*big.Int, bool) {
	product, ok := mulU256(a, b)
	if !ok {
		return nil, false
	}
	return divU256(product, c)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
