package market

import (
	"fmt"
	"math/big"

	"defil/core/events"
	"defil/crypto"
)

// accrualError is a hard failure raised when interest accrual leaves the
// numeric domain.
type accrualError struct {
	info FailureInfo
}

func (e accrualError) Error() string {
	return fmt.Sprintf("market engine: accrue interest: %s", e.info)
}

func (e accrualError) Unwrap() error { return errOverflow }

// accrueInterest compounds the borrow index from the last accrual height to
// height. Calling it twice for the same height is a no-op.
func (e *Engine) accrueInterest(height uint64) error {
	market, err := e.loadBorrowMarket()
	if err != nil {
		return err
	}
	if height == market.AccrualHeight {
		return nil
	}
	cash, err := e.getCash()
	if err != nil {
		return err
	}

	rate := big.NewInt(0)
	if e.model != nil {
		rate, err = e.model.BorrowRatePerHeight(cash, market.TotalBorrows, market.TotalReserves)
		if err != nil {
			return fmt.Errorf("market engine: %s: %w", AccrueInterestBorrowRateCalculationFailed, err)
		}
	}
	if rate.Cmp(maxBorrowRate) > 0 {
		return fmt.Errorf("%w: %s per height", ErrBorrowRateHigh, rate)
	}

	delta := new(big.Int).SetUint64(height - market.AccrualHeight)
	factor, ok := mulU256(rate, delta)
	if !ok {
		return accrualError{AccrueInterestSimpleInterestFactorCalculationFailed}
	}
	interest, ok := mulScalarTruncate(factor, market.TotalBorrows)
	if !ok {
		return accrualError{AccrueInterestAccumulatedInterestCalculationFailed}
	}
	totalBorrows, ok := addU256(interest, market.TotalBorrows)
	if !ok {
		return accrualError{AccrueInterestNewTotalBorrowsCalculationFailed}
	}
	totalReserves, ok := mulScalarTruncateAdd(interest, e.params.ReserveFactor, market.TotalReserves)
	if !ok {
		return accrualError{AccrueInterestNewTotalReservesCalculationFailed}
	}
	borrowIndex, ok := mulScalarTruncateAdd(factor, market.BorrowIndex, market.BorrowIndex)
	if !ok {
		return accrualError{AccrueInterestNewBorrowIndexCalculationFailed}
	}

	market.AccrualHeight = height
	market.TotalBorrows = totalBorrows
	market.TotalReserves = totalReserves
	market.BorrowIndex = borrowIndex
	if err := e.saveBorrowMarket(market); err != nil {
		return err
	}
	e.recorder.Emit(events.AccrueInterest{
		Height:              height,
		CashPrior:           cash,
		InterestAccumulated: interest,
		BorrowIndex:         clone(borrowIndex),
		TotalBorrows:        clone(totalBorrows),
		TotalReserves:       clone(totalReserves),
	})
	return nil
}

// borrowBalanceStored derives the present value of a borrow:
// principal * borrowIndex / interestIndex.
func (e *Engine) borrowBalanceStored(addr crypto.Address, market *BorrowMarket) (*big.Int, bool, error) {
	snap, err := e.loadAccountBorrow(addr)
	if err != nil {
		return nil, false, err
	}
	if snap.Principal.Sign() == 0 {
		return big.NewInt(0), true, nil
	}
	if snap.InterestIndex.Sign() == 0 {
		return nil, false, nil
	}
	pv, ok := fraction(snap.Principal, market.BorrowIndex, snap.InterestIndex)
	return pv, ok, nil
}

// collateralCapacity is how much collateral allows to be borrowed.
func (e *Engine) collateralCapacity(collateral *big.Int) (*big.Int, bool) {
	return mulScalarTruncate(collateral, e.params.CollateralFactor)
}

func (e *Engine) borrowFresh(borrower crypto.Address, amount *big.Int) (*Result, error) {
	controls, err := e.loadControls()
	if err != nil {
		return nil, err
	}
	if !controls.BorrowAllowed {
		return rejected(OpBorrow, e.height, borrower, fail(Rejection, BorrowRejection)), nil
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	principal, ok, err := e.borrowBalanceStored(borrower, market)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rejected(OpBorrow, e.height, borrower, fail(MathError, BorrowAccumulatedBalanceCalculationFailed)), nil
	}
	cash, err := e.getCash()
	if err != nil {
		return nil, err
	}
	collateral, err := e.collateralOf(borrower)
	if err != nil {
		return nil, err
	}
	capacity, ok := e.collateralCapacity(collateral)
	if !ok {
		return rejected(OpBorrow, e.height, borrower, fail(MathError, BorrowNewAccountBorrowBalanceCalculationFailed)), nil
	}

	if isMax(amount) {
		available := new(big.Int).Sub(capacity, principal)
		if available.Sign() < 0 {
			available.SetInt64(0)
		}
		amount = minBig(available, cash)
	}
	if amount.Cmp(cash) > 0 {
		return rejected(OpBorrow, e.height, borrower, fail(TokenInsufficientCash, BorrowCashNotAvailable)), nil
	}
	newPrincipal, ok := addU256(principal, amount)
	if !ok {
		return rejected(OpBorrow, e.height, borrower, fail(MathError, BorrowNewAccountBorrowBalanceCalculationFailed)), nil
	}
	newTotal, ok := addU256(market.TotalBorrows, amount)
	if !ok {
		return rejected(OpBorrow, e.height, borrower, fail(MathError, BorrowNewTotalBalanceCalculationFailed)), nil
	}
	if newPrincipal.Cmp(capacity) > 0 {
		return rejected(OpBorrow, e.height, borrower, fail(InsufficientCollateral, BorrowInsufficientCollateral)), nil
	}

	if err := e.saveAccountBorrow(borrower, &AccountBorrow{Principal: newPrincipal, InterestIndex: clone(market.BorrowIndex)}); err != nil {
		return nil, err
	}
	market.TotalBorrows = newTotal
	if err := e.saveBorrowMarket(market); err != nil {
		return nil, err
	}
	if err := e.transferOut(e.underlying, borrower, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.Borrow{
		Height:         e.height,
		Borrower:       borrower,
		Amount:         clone(amount),
		AccountBorrows: clone(newPrincipal),
		TotalBorrows:   clone(newTotal),
	})
	return &Result{Amount: clone(amount)}, nil
}

func (e *Engine) repayFresh(payer, borrower crypto.Address, amount *big.Int) (*Result, error) {
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	principal, ok, err := e.borrowBalanceStored(borrower, market)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rejected(OpRepay, e.height, payer, fail(MathError, RepayBorrowAccumulatedBalanceCalculationFailed)), nil
	}
	if isMax(amount) {
		amount = principal
	}
	if amount.Cmp(principal) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrRepayTooLarge, amount, principal)
	}
	newPrincipal, ok := subU256(principal, amount)
	if !ok {
		return rejected(OpRepay, e.height, payer, fail(MathError, RepayBorrowNewAccountBorrowBalanceCalculationFailed)), nil
	}
	newTotal, ok := subU256(market.TotalBorrows, amount)
	if !ok {
		return rejected(OpRepay, e.height, payer, fail(MathError, RepayBorrowNewTotalBalanceCalculationFailed)), nil
	}

	if err := e.saveAccountBorrow(borrower, &AccountBorrow{Principal: newPrincipal, InterestIndex: clone(market.BorrowIndex)}); err != nil {
		return nil, err
	}
	market.TotalBorrows = newTotal
	if err := e.saveBorrowMarket(market); err != nil {
		return nil, err
	}
	if err := e.transferIn(e.underlying, payer, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.RepayBorrow{
		Height:         e.height,
		Payer:          payer,
		Borrower:       borrower,
		Amount:         clone(amount),
		AccountBorrows: clone(newPrincipal),
		TotalBorrows:   clone(newTotal),
	})
	return &Result{Amount: clone(amount)}, nil
}
