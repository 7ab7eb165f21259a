package market

import (
	"math/big"

	"defil/crypto"
)

// EmissionState tracks the reward schedule. CurrentRate is the amount of
// reward asset emitted per height.
type EmissionState struct {
	CurrentRate     *big.Int
	NextHalveHeight uint64
	AccrualHeight   uint64
	// SupplyIndex is the per-share reward accumulator with a 1e36 mantissa.
	// It never decreases.
	SupplyIndex *big.Int
}

// Exhausted reports whether the rate fell below the floor.
func (s *EmissionState) Exhausted(minRate *big.Int) bool {
	return s.CurrentRate == nil || s.CurrentRate.Cmp(minRate) < 0
}

// BorrowMarket captures the global borrow accounting.
type BorrowMarket struct {
	TotalBorrows  *big.Int
	TotalReserves *big.Int
	// BorrowIndex compounds interest since genesis with a 1e18 mantissa
	// starting at 1.0.
	BorrowIndex   *big.Int
	AccrualHeight uint64
}

// AccountBorrow is the snapshot of a borrower's debt taken at their last
// update. The present value is derived from it on read.
type AccountBorrow struct {
	Principal     *big.Int
	InterestIndex *big.Int
}

// Totals aggregates the position ledgers.
type Totals struct {
	TotalShareSupply *big.Int
	TotalCollaterals *big.Int
}

// Controls holds the administratively settable switches.
type Controls struct {
	MintAllowed   bool
	BorrowAllowed bool
	Weights       Weights
}

// MarketView is a read-only snapshot of the whole market.
type MarketView struct {
	Height              uint64
	Cash                *big.Int
	TotalBorrows        *big.Int
	TotalReserves       *big.Int
	BorrowIndex         *big.Int
	TotalShareSupply    *big.Int
	TotalCollaterals    *big.Int
	ExchangeRate        *big.Int
	BorrowRatePerHeight *big.Int
	SupplyRatePerHeight *big.Int
	Emission            EmissionState
	Controls            Controls
}

// AccountView is a read-only snapshot of one participant.
type AccountView struct {
	Address        crypto.Address
	Shares         *big.Int
	Collateral     *big.Int
	BorrowBalance  *big.Int
	AccruedReward  *big.Int
	PendingReward  *big.Int
	UnderlyingHeld *big.Int
}
