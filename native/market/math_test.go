package market

import (
	"math/big"
	"testing"
)

func TestMaxAmountIsAllOnes(t *testing.T) {
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if MaxAmount.Cmp(want) != 0 {
		t.Fatalf("MaxAmount = %s", MaxAmount)
	}
	if !isMax(want) || isMax(ether(1)) {
		t.Fatalf("isMax misclassified")
	}
}

func TestU256Bounds(t *testing.T) {
	if _, ok := addU256(MaxAmount, big.NewInt(1)); ok {
		t.Fatalf("add overflow not detected")
	}
	if _, ok := subU256(big.NewInt(1), big.NewInt(2)); ok {
		t.Fatalf("sub underflow not detected")
	}
	if _, ok := mulU256(MaxAmount, big.NewInt(2)); ok {
		t.Fatalf("mul overflow not detected")
	}
	if _, ok := divU256(big.NewInt(1), big.NewInt(0)); ok {
		t.Fatalf("division by zero not detected")
	}
	if _, ok := addU256(big.NewInt(-1), big.NewInt(1)); ok {
		t.Fatalf("negative operand accepted")
	}
	sum, ok := addU256(nil, big.NewInt(5))
	if !ok || sum.Int64() != 5 {
		t.Fatalf("nil operand must read as zero: %v %v", sum, ok)
	}
}

func TestScaledHelpersTruncate(t *testing.T) {
	// 7 * 0.5 = 3.5 -> 3
	half := mustBigInt("500000000000000000")
	got, ok := mulScalarTruncate(big.NewInt(7), half)
	if !ok || got.Int64() != 3 {
		t.Fatalf("mulScalarTruncate = %v", got)
	}
	got, ok = mulScalarTruncateAdd(big.NewInt(7), half, big.NewInt(10))
	if !ok || got.Int64() != 13 {
		t.Fatalf("mulScalarTruncateAdd = %v", got)
	}
	// 10 / 3.0 -> 3
	got, ok = divScalarByExp(big.NewInt(10), Exp(3))
	if !ok || got.Int64() != 3 {
		t.Fatalf("divScalarByExp = %v", got)
	}
	got, ok = fraction(big.NewInt(10), big.NewInt(10), big.NewInt(3))
	if !ok || got.Int64() != 33 {
		t.Fatalf("fraction = %v", got)
	}
	if minBig(big.NewInt(4), big.NewInt(9)).Int64() != 4 {
		t.Fatalf("minBig")
	}
}

func TestDivScalarByExpCeil(t *testing.T) {
	rate := mustBigInt("1050000000000000000")
	got, ok := divScalarByExpCeil(big.NewInt(1), rate)
	if !ok || got.Int64() != 1 {
		t.Fatalf("ceil(1 / 1.05) = %v", got)
	}
	got, ok = divScalarByExpCeil(mustBigInt("2100000000000000000"), rate)
	if !ok || got.Cmp(Exp(2)) != 0 {
		t.Fatalf("ceil(2.1 / 1.05) = %v", got)
	}
	got, ok = divScalarByExpCeil(big.NewInt(0), rate)
	if !ok || got.Sign() != 0 {
		t.Fatalf("ceil(0 / 1.05) = %v", got)
	}
	if _, ok := divScalarByExpCeil(big.NewInt(1), big.NewInt(0)); ok {
		t.Fatalf("division by zero not detected")
	}
	if _, ok := divScalarByExpCeil(MaxAmount, rate); ok {
		t.Fatalf("overflow not detected")
	}
}
