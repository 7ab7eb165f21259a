package market

import (
	"math/big"

	"defil/crypto"
)

// Snapshot returns the market as of the last committed accrual. It never
// accrues and never writes, apart from initialising an empty store.
func (e *Engine) Snapshot() (*MarketView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.ensureMarket(); err != nil {
		return nil, err
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	emission, err := e.loadEmission()
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	controls, err := e.loadControls()
	if err != nil {
		return nil, err
	}
	cash, err := e.getCash()
	if err != nil {
		return nil, err
	}
	rate, ok, err := e.exchangeRateStored()
	if err != nil {
		return nil, err
	}
	if !ok {
		rate = nil
	}
	view := &MarketView{
		Height:           market.AccrualHeight,
		Cash:             cash,
		TotalBorrows:     market.TotalBorrows,
		TotalReserves:    market.TotalReserves,
		BorrowIndex:      market.BorrowIndex,
		TotalShareSupply: totals.TotalShareSupply,
		TotalCollaterals: totals.TotalCollaterals,
		ExchangeRate:     rate,
		Emission:         *emission,
		Controls:         *controls,
	}
	if e.model != nil {
		if borrowRate, err := e.model.BorrowRatePerHeight(cash, market.TotalBorrows, market.TotalReserves); err == nil {
			view.BorrowRatePerHeight = borrowRate
		}
		if supplyRate, err := SupplyRatePerHeight(e.model, cash, market.TotalBorrows, market.TotalReserves, e.params.ReserveFactor); err == nil {
			view.SupplyRatePerHeight = supplyRate
		}
	}
	return view, nil
}

// Account returns one participant's positions as of the last accrual.
func (e *Engine) Account(addr crypto.Address) (*AccountView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.ensureMarket(); err != nil {
		return nil, err
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	emission, err := e.loadEmission()
	if err != nil {
		return nil, err
	}
	shares, err := e.sharesOf(addr)
	if err != nil {
		return nil, err
	}
	collateral, err := e.collateralOf(addr)
	if err != nil {
		return nil, err
	}
	owed, ok, err := e.borrowBalanceStored(addr, market)
	if err != nil {
		return nil, err
	}
	if !ok {
		owed = nil
	}
	accrued, err := e.accruedRewardOf(addr)
	if err != nil {
		return nil, err
	}
	pending, _, err := e.pendingSupplierReward(addr, emission.SupplyIndex)
	if err != nil {
		return nil, err
	}
	held, err := e.underlying.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	return &AccountView{
		Address:        addr,
		Shares:         shares,
		Collateral:     collateral,
		BorrowBalance:  owed,
		AccruedReward:  accrued,
		PendingReward:  pending,
		UnderlyingHeld: held,
	}, nil
}

// ExchangeRate returns the current share price with a 1e18 mantissa.
func (e *Engine) ExchangeRate() (*big.Int, error) {
	view, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	if view.ExchangeRate == nil {
		return nil, errOverflow
	}
	return view.ExchangeRate, nil
}
