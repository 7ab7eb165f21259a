package market

import (
	"errors"
	"fmt"
)

// Hard failures. Any of these aborts the operation and reverts every write it
// made, accruals included.
var (
	errNilState        = errors.New("market engine: state not configured")
	errNilMarket       = errors.New("market engine: market not initialised")
	errOverflow        = errors.New("market engine: arithmetic overflow")
	ErrReentrant       = errors.New("market engine: reentrant call")
	ErrHeightRegressed = errors.New("market engine: height regressed")
	ErrInvalidAmount   = errors.New("market engine: amount must not be negative")
	ErrRepayTooLarge   = errors.New("market engine: repay amount exceeds borrow balance")
	ErrBorrowRateHigh  = errors.New("market engine: borrow rate is absurdly high")
	ErrInvalidWeights  = errors.New("market engine: weights must sum to 1e18")
	ErrInvalidParams   = errors.New("market engine: invalid parameters")
)

// ErrorCode is the coarse reason of a soft failure.
type ErrorCode uint8

const (
	NoError ErrorCode = iota
	Unauthorized
	BadInput
	Rejection
	MathError
	NotFresh
	TokenInsufficientCash
	TokenTransferInFailed
	TokenTransferOutFailed
	InsufficientCollateral
)

var errorCodeNames = [...]string{
	"NO_ERROR",
	"UNAUTHORIZED",
	"BAD_INPUT",
	"REJECTION",
	"MATH_ERROR",
	"NOT_FRESH",
	"TOKEN_INSUFFICIENT_CASH",
	"TOKEN_TRANSFER_IN_FAILED",
	"TOKEN_TRANSFER_OUT_FAILED",
	"INSUFFICIENT_COLLATERAL",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// FailureInfo pinpoints the check that produced a soft failure.
type FailureInfo uint8

const (
	AcceptAdminPendingAdminCheck FailureInfo = iota
	AccrueInterestAccumulatedInterestCalculationFailed
	AccrueInterestBorrowRateCalculationFailed
	AccrueInterestNewBorrowIndexCalculationFailed
	AccrueInterestNewTotalBorrowsCalculationFailed
	AccrueInterestNewTotalReservesCalculationFailed
	AccrueInterestSimpleInterestFactorCalculationFailed
	BorrowAccumulatedBalanceCalculationFailed
	BorrowAccrueInterestFailed
	BorrowCashNotAvailable
	BorrowNewTotalBalanceCalculationFailed
	BorrowNewAccountBorrowBalanceCalculationFailed
	BorrowRejection
	BorrowInsufficientCollateral
	MintRejection
	MintExchangeCalculationFailed
	MintExchangeRateReadFailed
	MintNewAccountBalanceCalculationFailed
	MintNewTotalSupplyCalculationFailed
	RedeemExchangeRateReadFailed
	RedeemExchangeTokensCalculationFailed
	RedeemExchangeAmountCalculationFailed
	RedeemNewAccountBalanceCalculationFailed
	RedeemNewTotalSupplyCalculationFailed
	RedeemTransferOutNotPossible
	RepayBorrowAccumulatedBalanceCalculationFailed
	RepayBorrowNewAccountBorrowBalanceCalculationFailed
	RepayBorrowNewTotalBalanceCalculationFailed
	CollateralizeRejection
	RedeemCollateralAccumulatedBalanceCalculationFailed
	RedeemCollateralInsufficientCollateral
	RedeemCollateralNewTotalCalculationFailed
	RedeemCollateralTransferOutNotPossible
	CollateralizeNewAccountCollateralCalculationFailed
	CollateralizeNewTotalCalculationFailed
)

var failureInfoNames = [...]string{
	"ACCEPT_ADMIN_PENDING_ADMIN_CHECK",
	"ACCRUE_INTEREST_ACCUMULATED_INTEREST_CALCULATION_FAILED",
	"ACCRUE_INTEREST_BORROW_RATE_CALCULATION_FAILED",
	"ACCRUE_INTEREST_NEW_BORROW_INDEX_CALCULATION_FAILED",
	"ACCRUE_INTEREST_NEW_TOTAL_BORROWS_CALCULATION_FAILED",
	"ACCRUE_INTEREST_NEW_TOTAL_RESERVES_CALCULATION_FAILED",
	"ACCRUE_INTEREST_SIMPLE_INTEREST_FACTOR_CALCULATION_FAILED",
	"BORROW_ACCUMULATED_BALANCE_CALCULATION_FAILED",
	"BORROW_ACCRUE_INTEREST_FAILED",
	"BORROW_CASH_NOT_AVAILABLE",
	"BORROW_NEW_TOTAL_BALANCE_CALCULATION_FAILED",
	"BORROW_NEW_ACCOUNT_BORROW_BALANCE_CALCULATION_FAILED",
	"BORROW_REJECTION",
	"BORROW_INSUFFICIENT_COLLATERAL",
	"MINT_REJECTION",
	"MINT_EXCHANGE_CALCULATION_FAILED",
	"MINT_EXCHANGE_RATE_READ_FAILED",
	"MINT_NEW_ACCOUNT_BALANCE_CALCULATION_FAILED",
	"MINT_NEW_TOTAL_SUPPLY_CALCULATION_FAILED",
	"REDEEM_EXCHANGE_RATE_READ_FAILED",
	"REDEEM_EXCHANGE_TOKENS_CALCULATION_FAILED",
	"REDEEM_EXCHANGE_AMOUNT_CALCULATION_FAILED",
	"REDEEM_NEW_ACCOUNT_BALANCE_CALCULATION_FAILED",
	"REDEEM_NEW_TOTAL_SUPPLY_CALCULATION_FAILED",
	"REDEEM_TRANSFER_OUT_NOT_POSSIBLE",
	"REPAY_BORROW_ACCUMULATED_BALANCE_CALCULATION_FAILED",
	"REPAY_BORROW_NEW_ACCOUNT_BORROW_BALANCE_CALCULATION_FAILED",
	"REPAY_BORROW_NEW_TOTAL_BALANCE_CALCULATION_FAILED",
	"COLLATERALIZE_REJECTION",
	"REDEEM_COLLATERAL_ACCUMULATED_BALANCE_CALCULATION_FAILED",
	"REDEEM_COLLATERAL_INSUFFICIENT_COLLATERAL",
	"REDEEM_COLLATERAL_NEW_TOTAL_CALCULATION_FAILED",
	"REDEEM_COLLATERAL_TRANSFER_OUT_NOT_POSSIBLE",
	"COLLATERALIZE_NEW_ACCOUNT_COLLATERAL_CALCULATION_FAILED",
	"COLLATERALIZE_NEW_TOTAL_CALCULATION_FAILED",
}

func (i FailureInfo) String() string {
	if int(i) < len(failureInfoNames) {
		return failureInfoNames[i]
	}
	return fmt.Sprintf("FailureInfo(%d)", uint8(i))
}

// Failure is a soft business rejection. Accruals that ran before the check
// remain committed.
type Failure struct {
	Error  ErrorCode
	Info   FailureInfo
	Detail uint64
}

func (f *Failure) String() string {
	if f == nil {
		return NoError.String()
	}
	return fmt.Sprintf("%s/%s", f.Error, f.Info)
}

func fail(code ErrorCode, info FailureInfo) *Failure {
	return &Failure{Error: code, Info: info}
}
