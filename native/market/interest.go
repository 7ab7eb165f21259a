package market

import (
	"errors"
	"math/big"
)

// DefaultBlocksPerYear converts yearly rates into per-height rates.
const DefaultBlocksPerYear uint64 = 2_102_400

// maxBorrowRate bounds the per-height borrow rate (0.0005% per height).
var maxBorrowRate = mustBigInt("5000000000000")

var errUtilisation = errors.New("interest: utilisation out of range")

// InterestRateModel maps the pool balances to a per-height borrow rate with a
// 1e18 mantissa.
type InterestRateModel interface {
	BorrowRatePerHeight(cash, borrows, reserves *big.Int) (*big.Int, error)
}

// Utilisation computes U = borrows / (cash + borrows - reserves) with a 1e18
// mantissa. When nothing is borrowed the utilisation is defined as zero.
func Utilisation(cash, borrows, reserves *big.Int) (*big.Int, error) {
	if borrows == nil || borrows.Sign() == 0 {
		return big.NewInt(0), nil
	}
	denom := new(big.Int).Add(zeroIfNil(cash), borrows)
	denom.Sub(denom, zeroIfNil(reserves))
	if denom.Sign() <= 0 {
		return nil, errUtilisation
	}
	util, ok := fraction(borrows, expScale, denom)
	if !ok {
		return nil, errUtilisation
	}
	return util, nil
}

// WhitePaperModel is the linear curve rate = U*multiplier + base.
type WhitePaperModel struct {
	BaseRatePerHeight   *big.Int
	MultiplierPerHeight *big.Int
}

// NewWhitePaperModel derives per-height parameters from yearly mantissas.
func NewWhitePaperModel(baseRatePerYear, multiplierPerYear *big.Int, blocksPerYear uint64) *WhitePaperModel {
	if blocksPerYear == 0 {
		blocksPerYear = DefaultBlocksPerYear
	}
	per := new(big.Int).SetUint64(blocksPerYear)
	return &WhitePaperModel{
		BaseRatePerHeight:   new(big.Int).Quo(zeroIfNil(baseRatePerYear), per),
		MultiplierPerHeight: new(big.Int).Quo(zeroIfNil(multiplierPerYear), per),
	}
}

// BorrowRatePerHeight implements InterestRateModel.
func (m *WhitePaperModel) BorrowRatePerHeight(cash, borrows, reserves *big.Int) (*big.Int, error) {
	if m == nil {
		return big.NewInt(0), nil
	}
	util, err := Utilisation(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	rate, ok := mulScalarTruncateAdd(util, zeroIfNil(m.MultiplierPerHeight), zeroIfNil(m.BaseRatePerHeight))
	if !ok {
		return nil, errUtilisation
	}
	return rate, nil
}

// JumpRateModel is a kinked curve: slope1 up to the kink utilisation, slope2
// beyond it.
type JumpRateModel struct {
	BaseRatePerHeight *big.Int
	Slope1PerHeight   *big.Int
	Slope2PerHeight   *big.Int
	Kink              *big.Int
}

// NewJumpRateModel constructs a kinked model from floating point inputs.
//
// The parameters should be provided as yearly decimals, e.g. a 2% base rate is
// expressed as 0.02 and an 80% kink utilisation is 0.8.
func NewJumpRateModel(baseRate, slope1, slope2, kink float64, blocksPerYear uint64) *JumpRateModel {
	if blocksPerYear == 0 {
		blocksPerYear = DefaultBlocksPerYear
	}
	perHeight := func(v float64) *big.Int {
		r := new(big.Rat).SetFloat64(v)
		if r == nil {
			return big.NewInt(0)
		}
		r.Quo(r, new(big.Rat).SetUint64(blocksPerYear))
		return ratToMantissa(r)
	}
	kinkRat := new(big.Rat).SetFloat64(kink)
	kinkMantissa := big.NewInt(0)
	if kinkRat != nil {
		kinkMantissa = ratToMantissa(kinkRat)
	}
	return &JumpRateModel{
		BaseRatePerHeight: perHeight(baseRate),
		Slope1PerHeight:   perHeight(slope1),
		Slope2PerHeight:   perHeight(slope2),
		Kink:              kinkMantissa,
	}
}

func ratToMantissa(r *big.Rat) *big.Int {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(expScale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// BorrowRatePerHeight implements InterestRateModel.
func (m *JumpRateModel) BorrowRatePerHeight(cash, borrows, reserves *big.Int) (*big.Int, error) {
	if m == nil {
		return big.NewInt(0), nil
	}
	util, err := Utilisation(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	base := zeroIfNil(m.BaseRatePerHeight)
	kink := zeroIfNil(m.Kink)
	if kink.Sign() == 0 || util.Cmp(kink) <= 0 {
		// Linear region before the kink.
		rate, ok := mulScalarTruncateAdd(util, zeroIfNil(m.Slope1PerHeight), base)
		if !ok {
			return nil, errUtilisation
		}
		return rate, nil
	}
	atKink, ok := mulScalarTruncateAdd(kink, zeroIfNil(m.Slope1PerHeight), base)
	if !ok {
		return nil, errUtilisation
	}
	excess := new(big.Int).Sub(util, kink)
	rate, ok := mulScalarTruncateAdd(excess, zeroIfNil(m.Slope2PerHeight), atKink)
	if !ok {
		return nil, errUtilisation
	}
	return rate, nil
}

// SupplyRatePerHeight derives what share holders earn per height:
// borrowRate * U * (1 - reserveFactor).
func SupplyRatePerHeight(model InterestRateModel, cash, borrows, reserves, reserveFactor *big.Int) (*big.Int, error) {
	if model == nil {
		return big.NewInt(0), nil
	}
	borrowRate, err := model.BorrowRatePerHeight(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	util, err := Utilisation(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	oneMinusReserve := new(big.Int).Sub(expScale, zeroIfNil(reserveFactor))
	if oneMinusReserve.Sign() < 0 {
		oneMinusReserve.SetInt64(0)
	}
	rateToPool, ok := mulScalarTruncate(borrowRate, oneMinusReserve)
	if !ok {
		return nil, errUtilisation
	}
	rate, ok := mulScalarTruncate(util, rateToPool)
	if !ok {
		return nil, errUtilisation
	}
	return rate, nil
}

// DefaultInterestModel is the linear curve the market launches with: 2% base
// and a 10% multiplier per year.
func DefaultInterestModel() InterestRateModel {
	return NewWhitePaperModel(mustBigInt("20000000000000000"), mustBigInt("100000000000000000"), DefaultBlocksPerYear)
}
