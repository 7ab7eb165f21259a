package market

import (
	"math/big"

	"defil/core/events"
	"defil/crypto"
)

// exchangeRateStored prices one share in underlying units with a 1e18
// mantissa: (cash + totalBorrows - totalReserves) / totalShareSupply, or the
// initial rate while no shares exist.
func (e *Engine) exchangeRateStored() (*big.Int, bool, error) {
	totals, err := e.loadTotals()
	if err != nil {
		return nil, false, err
	}
	if totals.TotalShareSupply.Sign() == 0 {
		return clone(e.params.InitialExchangeRate), true, nil
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, false, err
	}
	cash, err := e.getCash()
	if err != nil {
		return nil, false, err
	}
	gross, ok := addU256(cash, market.TotalBorrows)
	if !ok {
		return nil, false, nil
	}
	net, ok := subU256(gross, market.TotalReserves)
	if !ok {
		return nil, false, nil
	}
	rate, ok := fraction(net, expScale, totals.TotalShareSupply)
	return rate, ok, nil
}

func (e *Engine) mintFresh(minter crypto.Address, amount *big.Int) (*Result, error) {
	controls, err := e.loadControls()
	if err != nil {
		return nil, err
	}
	if !controls.MintAllowed {
		return rejected(OpMint, e.height, minter, fail(Rejection, MintRejection)), nil
	}
	eligible, err := e.canOpen(minter, sideShares)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return rejected(OpMint, e.height, minter, fail(Rejection, MintRejection)), nil
	}
	rate, ok, err := e.exchangeRateStored()
	if err != nil {
		return nil, err
	}
	if !ok {
		return rejected(OpMint, e.height, minter, fail(MathError, MintExchangeRateReadFailed)), nil
	}
	shares, ok := divScalarByExp(amount, rate)
	if !ok {
		return rejected(OpMint, e.height, minter, fail(MathError, MintExchangeCalculationFailed)), nil
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	newSupply, ok := addU256(totals.TotalShareSupply, shares)
	if !ok {
		return rejected(OpMint, e.height, minter, fail(MathError, MintNewTotalSupplyCalculationFailed)), nil
	}
	balance, err := e.sharesOf(minter)
	if err != nil {
		return nil, err
	}
	newBalance, ok := addU256(balance, shares)
	if !ok {
		return rejected(OpMint, e.height, minter, fail(MathError, MintNewAccountBalanceCalculationFailed)), nil
	}

	if err := e.distributeSupplier(minter); err != nil {
		return nil, err
	}
	totals.TotalShareSupply = newSupply
	if err := e.saveTotals(totals); err != nil {
		return nil, err
	}
	if err := e.storeAmount(sharesKey(minter), newBalance); err != nil {
		return nil, err
	}
	if err := e.transferIn(e.underlying, minter, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.Mint{Height: e.height, Minter: minter, Amount: clone(amount), Shares: clone(shares)})
	return &Result{Amount: clone(amount), Shares: shares}, nil
}

// redeemFresh burns sharesIn, or when sharesIn is nil the shares worth
// amountIn, and pays out the underlying.
func (e *Engine) redeemFresh(redeemer crypto.Address, sharesIn, amountIn *big.Int) (*Result, error) {
	op := OpRedeem
	if sharesIn == nil {
		op = OpRedeemUnderlying
	}
	rate, ok, err := e.exchangeRateStored()
	if err != nil {
		return nil, err
	}
	if !ok {
		return rejected(op, e.height, redeemer, fail(MathError, RedeemExchangeRateReadFailed)), nil
	}
	var shares, amount *big.Int
	if sharesIn != nil {
		shares = clone(sharesIn)
		amount, ok = mulScalarTruncate(rate, shares)
		if !ok {
			return rejected(op, e.height, redeemer, fail(MathError, RedeemExchangeTokensCalculationFailed)), nil
		}
	} else {
		amount = clone(amountIn)
		// Burn rounds against the redeemer so no underlying leaves without shares.
		shares, ok = divScalarByExpCeil(amount, rate)
		if !ok || (shares.Sign() == 0 && amount.Sign() > 0) {
			return rejected(op, e.height, redeemer, fail(MathError, RedeemExchangeAmountCalculationFailed)), nil
		}
	}

	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	newSupply, ok := subU256(totals.TotalShareSupply, shares)
	if !ok {
		return rejected(op, e.height, redeemer, fail(MathError, RedeemNewTotalSupplyCalculationFailed)), nil
	}
	balance, err := e.sharesOf(redeemer)
	if err != nil {
		return nil, err
	}
	newBalance, ok := subU256(balance, shares)
	if !ok {
		return rejected(op, e.height, redeemer, fail(MathError, RedeemNewAccountBalanceCalculationFailed)), nil
	}
	cash, err := e.getCash()
	if err != nil {
		return nil, err
	}
	if cash.Cmp(amount) < 0 {
		return rejected(op, e.height, redeemer, fail(TokenInsufficientCash, RedeemTransferOutNotPossible)), nil
	}

	if err := e.distributeSupplier(redeemer); err != nil {
		return nil, err
	}
	totals.TotalShareSupply = newSupply
	if err := e.saveTotals(totals); err != nil {
		return nil, err
	}
	if err := e.storeAmount(sharesKey(redeemer), newBalance); err != nil {
		return nil, err
	}
	if err := e.transferOut(e.underlying, redeemer, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.Redeem{Height: e.height, Redeemer: redeemer, Amount: clone(amount), Shares: clone(shares)})
	return &Result{Amount: amount, Shares: shares}, nil
}

func (e *Engine) collateralizeFresh(participant crypto.Address, amount *big.Int) (*Result, error) {
	eligible, err := e.canOpen(participant, sideCollateral)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return rejected(OpCollateralize, e.height, participant, fail(Rejection, CollateralizeRejection)), nil
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	collateral, err := e.collateralOf(participant)
	if err != nil {
		return nil, err
	}
	newCollateral, ok := addU256(collateral, amount)
	if !ok {
		return rejected(OpCollateralize, e.height, participant, fail(MathError, CollateralizeNewAccountCollateralCalculationFailed)), nil
	}
	newTotal, ok := addU256(totals.TotalCollaterals, amount)
	if !ok {
		return rejected(OpCollateralize, e.height, participant, fail(MathError, CollateralizeNewTotalCalculationFailed)), nil
	}

	totals.TotalCollaterals = newTotal
	if err := e.saveTotals(totals); err != nil {
		return nil, err
	}
	if err := e.storeAmount(collateralKey(participant), newCollateral); err != nil {
		return nil, err
	}
	if err := e.transferIn(e.collateral, participant, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.Collateralize{Height: e.height, Participant: participant, Amount: clone(amount), TotalCollaterals: clone(newTotal)})
	return &Result{Amount: clone(amount)}, nil
}

func (e *Engine) redeemCollateralFresh(participant crypto.Address, amount *big.Int) (*Result, error) {
	collateral, err := e.collateralOf(participant)
	if err != nil {
		return nil, err
	}
	remaining, ok := subU256(collateral, amount)
	if !ok {
		return rejected(OpRedeemCollateral, e.height, participant, fail(MathError, RedeemCollateralAccumulatedBalanceCalculationFailed)), nil
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	owed, ok, err := e.borrowBalanceStored(participant, market)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rejected(OpRedeemCollateral, e.height, participant, fail(MathError, RedeemCollateralAccumulatedBalanceCalculationFailed)), nil
	}
	capacity, ok := e.collateralCapacity(remaining)
	if !ok || capacity.Cmp(owed) < 0 {
		return rejected(OpRedeemCollateral, e.height, participant, fail(InsufficientCollateral, RedeemCollateralInsufficientCollateral)), nil
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	newTotal, ok := subU256(totals.TotalCollaterals, amount)
	if !ok {
		return rejected(OpRedeemCollateral, e.height, participant, fail(MathError, RedeemCollateralNewTotalCalculationFailed)), nil
	}

	totals.TotalCollaterals = newTotal
	if err := e.saveTotals(totals); err != nil {
		return nil, err
	}
	if err := e.storeAmount(collateralKey(participant), remaining); err != nil {
		return nil, err
	}
	if err := e.transferOut(e.collateral, participant, amount); err != nil {
		return nil, err
	}
	e.recorder.Emit(events.RedeemCollateral{Height: e.height, Participant: participant, Amount: clone(amount), TotalCollaterals: clone(newTotal)})
	return &Result{Amount: clone(amount)}, nil
}
