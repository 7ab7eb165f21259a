package market

import (
	"errors"
	"math/big"
	"testing"

	"defil/core/events"
	"defil/native/token"
)

// fixedRate charges the same borrow rate regardless of utilisation.
type fixedRate struct{ rate *big.Int }

func (m fixedRate) BorrowRatePerHeight(_, _, _ *big.Int) (*big.Int, error) {
	return new(big.Int).Set(m.rate), nil
}

func TestBorrowAgainstCollateral(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(40))

	res := f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(25)))
	if res.Amount.Cmp(ether(25)) != 0 {
		t.Fatalf("borrowed %s", res.Amount)
	}
	if got := f.balance(f.engine.Underlying(), borrower); got.Cmp(ether(25)) != 0 {
		t.Fatalf("borrower holds %s", got)
	}
	snap := f.accountBorrow(borrower)
	if snap.Principal.Cmp(ether(25)) != 0 || snap.InterestIndex.Cmp(ExpScale()) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if m := f.borrowMarket(); m.TotalBorrows.Cmp(ether(25)) != 0 {
		t.Fatalf("total borrows %s", m.TotalBorrows)
	}
	records := f.events.ofType(events.TypeBorrow)
	if len(records) != 1 {
		t.Fatalf("expected one borrow record, got %d", len(records))
	}
	rec := records[0].(events.Borrow)
	if rec.AccountBorrows.Cmp(ether(25)) != 0 || rec.TotalBorrows.Cmp(ether(25)) != 0 {
		t.Fatalf("unexpected borrow record %+v", rec)
	}
}

func TestBorrowRejectedWhenDisabled(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.BorrowAllowed = false })
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(40))

	res, err := f.engine.Borrow(genesisHeight, borrower, ether(1))
	f.mustFail(res, err, Rejection, BorrowRejection)
	if uint8(res.Failure.Error) != 3 || uint8(res.Failure.Info) != 12 {
		t.Fatalf("numeric codes drifted: %d/%d", res.Failure.Error, res.Failure.Info)
	}
}

func TestBorrowMaxAmount(t *testing.T) {
	cases := []struct {
		name       string
		supply     int64
		collateral int64
		prior      int64
		want       int64
	}{
		{name: "limited by collateral", supply: 100, collateral: 10, want: 10},
		{name: "after earlier borrow", supply: 100, collateral: 10, prior: 3, want: 7},
		{name: "limited by cash", supply: 5, collateral: 10, want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			lender, borrower := makeAddress(1), makeAddress(2)
			f.supply(genesisHeight, lender, ether(tc.supply))
			f.pledge(genesisHeight, borrower, ether(tc.collateral))
			if tc.prior > 0 {
				f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(tc.prior)))
			}
			res := f.mustOK(f.engine.Borrow(genesisHeight, borrower, MaxAmount))
			if res.Amount.Cmp(ether(tc.want)) != 0 {
				t.Fatalf("max borrow: want %s got %s", ether(tc.want), res.Amount)
			}
		})
	}
}

func TestBorrowInsufficientCollateral(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(10))

	res, err := f.engine.Borrow(genesisHeight, borrower, ether(11))
	f.mustFail(res, err, InsufficientCollateral, BorrowInsufficientCollateral)
	if uint8(res.Failure.Error) != 9 || uint8(res.Failure.Info) != 13 {
		t.Fatalf("numeric codes drifted: %d/%d", res.Failure.Error, res.Failure.Info)
	}
	if got := f.balance(f.engine.Underlying(), borrower); got.Sign() != 0 {
		t.Fatalf("rejected borrow paid out %s", got)
	}
}

func TestBorrowInsufficientCash(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(10))
	f.pledge(genesisHeight, borrower, ether(100))

	over := new(big.Int).Add(ether(10), big.NewInt(1))
	res, err := f.engine.Borrow(genesisHeight, borrower, over)
	f.mustFail(res, err, TokenInsufficientCash, BorrowCashNotAvailable)
	if uint8(res.Failure.Error) != 6 || uint8(res.Failure.Info) != 9 {
		t.Fatalf("numeric codes drifted: %d/%d", res.Failure.Error, res.Failure.Info)
	}
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(10)))
}

func TestBorrowTotalOverflow(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(10))
	f.pledge(genesisHeight, borrower, ether(10))
	f.setBorrowMarket(func(m *BorrowMarket) { m.TotalBorrows = new(big.Int).Set(MaxAmount) })

	res, err := f.engine.Borrow(genesisHeight, borrower, ether(1))
	f.mustFail(res, err, MathError, BorrowNewTotalBalanceCalculationFailed)
}

func TestBorrowBalanceUnreadable(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(10))
	f.pledge(genesisHeight, borrower, ether(10))
	if err := f.engine.saveAccountBorrow(borrower, &AccountBorrow{Principal: new(big.Int).Set(MaxAmount), InterestIndex: ExpScale()}); err != nil {
		t.Fatalf("save account borrow: %v", err)
	}

	res, err := f.engine.Borrow(genesisHeight, borrower, ether(1))
	f.mustFail(res, err, MathError, BorrowAccumulatedBalanceCalculationFailed)
}

func TestRepayAndRepayBehalf(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower, friend := makeAddress(1), makeAddress(2), makeAddress(3)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(40))
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(30)))

	if err := f.engine.Underlying().Approve(borrower, f.engine.ModuleAddress(), ether(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.mustOK(f.engine.Repay(genesisHeight, borrower, ether(10)))
	if snap := f.accountBorrow(borrower); snap.Principal.Cmp(ether(20)) != 0 {
		t.Fatalf("principal after repay %s", snap.Principal)
	}

	f.fund(f.engine.Underlying(), friend, ether(5))
	res := f.mustOK(f.engine.RepayBehalf(genesisHeight, friend, borrower, ether(5)))
	if res.Account != friend {
		t.Fatalf("result attributed to %s", res.Account)
	}
	if snap := f.accountBorrow(borrower); snap.Principal.Cmp(ether(15)) != 0 {
		t.Fatalf("principal after repay behalf %s", snap.Principal)
	}
	records := f.events.ofType(events.TypeRepayBorrow)
	last := records[len(records)-1].(events.RepayBorrow)
	if last.Payer != friend || last.Borrower != borrower || last.TotalBorrows.Cmp(ether(15)) != 0 {
		t.Fatalf("unexpected repay record %+v", last)
	}
}

func TestRepayTooLarge(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(40))
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(10)))
	f.fund(f.engine.Underlying(), borrower, ether(5))

	_, err := f.engine.Repay(genesisHeight, borrower, ether(11))
	if !errors.Is(err, ErrRepayTooLarge) {
		t.Fatalf("expected ErrRepayTooLarge, got %v", err)
	}
	if snap := f.accountBorrow(borrower); snap.Principal.Cmp(ether(10)) != 0 {
		t.Fatalf("principal changed: %s", snap.Principal)
	}
}

func TestRepayHardFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetInterestModel(DefaultInterestModel())
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(100))
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(50)))

	marketBefore := f.borrowMarket()
	emissionBefore := f.emission()
	snapBefore := f.accountBorrow(borrower)
	f.events.reset()

	check := func(label string, err error, want error) {
		t.Helper()
		if !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", label, want, err)
		}
		if len(f.events.events) != 0 {
			t.Fatalf("%s: hard failure published %d records", label, len(f.events.events))
		}
		m := f.borrowMarket()
		if m.AccrualHeight != marketBefore.AccrualHeight || m.BorrowIndex.Cmp(marketBefore.BorrowIndex) != 0 || m.TotalBorrows.Cmp(marketBefore.TotalBorrows) != 0 {
			t.Fatalf("%s: borrow market changed: %+v", label, m)
		}
		st := f.emission()
		if st.AccrualHeight != emissionBefore.AccrualHeight || st.SupplyIndex.Cmp(emissionBefore.SupplyIndex) != 0 {
			t.Fatalf("%s: emission changed: %+v", label, st)
		}
		snap := f.accountBorrow(borrower)
		if snap.Principal.Cmp(snapBefore.Principal) != 0 || snap.InterestIndex.Cmp(snapBefore.InterestIndex) != 0 {
			t.Fatalf("%s: account borrow changed: %+v", label, snap)
		}
		supply, err := f.engine.Reward().TotalSupply()
		if err != nil {
			t.Fatalf("%s: reward supply: %v", label, err)
		}
		if supply.Sign() != 0 {
			t.Fatalf("%s: reward minted despite abort: %s", label, supply)
		}
	}

	_, err := f.engine.Repay(100, borrower, ether(10))
	check("no allowance", err, token.ErrInsufficientAllowance)

	// Interest pushes the debt beyond the 50 the borrower holds.
	if err := f.engine.Underlying().Approve(borrower, f.engine.ModuleAddress(), ether(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = f.engine.Repay(100, borrower, MaxAmount)
	check("short balance", err, token.ErrInsufficientBalance)
}

func TestInterestCompounds(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.ReserveFactor = mustBigInt("100000000000000000") })
	f.engine.SetInterestModel(fixedRate{rate: mustBigInt("1000000000000")})
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(100))
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(50)))

	f.mustOK(f.engine.Accrue(genesisHeight + 10))
	m := f.borrowMarket()
	// factor = 1e12 * 10, interest = 50e18 * 1e13 / 1e18 = 5e14.
	interest := mustBigInt("500000000000000")
	wantBorrows := new(big.Int).Add(ether(50), interest)
	if m.TotalBorrows.Cmp(wantBorrows) != 0 {
		t.Fatalf("total borrows: want %s got %s", wantBorrows, m.TotalBorrows)
	}
	if want := mustBigInt("50000000000000"); m.TotalReserves.Cmp(want) != 0 {
		t.Fatalf("reserves: want %s got %s", want, m.TotalReserves)
	}
	if want := mustBigInt("1000010000000000000"); m.BorrowIndex.Cmp(want) != 0 {
		t.Fatalf("borrow index: want %s got %s", want, m.BorrowIndex)
	}
	view, err := f.engine.Account(borrower)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if view.BorrowBalance.Cmp(wantBorrows) != 0 {
		t.Fatalf("present value: want %s got %s", wantBorrows, view.BorrowBalance)
	}
	records := f.events.ofType(events.TypeAccrueInterest)
	if len(records) != 1 || records[0].(events.AccrueInterest).InterestAccumulated.Cmp(interest) != 0 {
		t.Fatalf("unexpected accrue interest records: %+v", records)
	}

	// Repaying everything clears both the account and the market total.
	f.fund(f.engine.Underlying(), borrower, interest)
	if err := f.engine.Underlying().Approve(borrower, f.engine.ModuleAddress(), wantBorrows); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res :=f.mustOK(f.engine.Repay(genesisHeight+10, borrower, MaxAmount))
	if res.Amount.Cmp(wantBorrows) != 0 {
		t.Fatalf("repaid %s", res.Amount)
	}
	if snap := f.accountBorrow(borrower); snap.Principal.Sign() != 0 {
		t.Fatalf("principal left %s", snap.Principal)
	}
	if m := f.borrowMarket(); m.TotalBorrows.Sign() != 0 {
		t.Fatalf("total borrows left %s", m.TotalBorrows)
	}
}

func TestBorrowRateTooHigh(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetInterestModel(fixedRate{rate: new(big.Int).Add(maxBorrowRate, big.NewInt(1))})
	f.mustOK(f.engine.Accrue(genesisHeight))
	f.events.reset()

	_, err := f.engine.Accrue(genesisHeight + 1)
	if !errors.Is(err, ErrBorrowRateHigh) {
		t.Fatalf("expected ErrBorrowRateHigh, got %v", err)
	}
	if m := f.borrowMarket(); m.AccrualHeight != genesisHeight {
		t.Fatalf("accrual committed at %d", m.AccrualHeight)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("hard failure published records")
	}

	f.engine.SetInterestModel(fixedRate{rate: new(big.Int).Set(maxBorrowRate)})
	f.mustOK(f.engine.Accrue(genesisHeight + 1))
}
