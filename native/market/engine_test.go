package market

import (
	"errors"
	"math/big"
	"testing"

	"defil/core/events"
	nativecommon "defil/native/common"
)

func TestOperationsRequireState(t *testing.T) {
	engine, err := NewEngine(DefaultParams())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Accrue(1); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	if _, err := engine.Snapshot(); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState from snapshot, got %v", err)
	}
}

func TestNewEngineRejectsInvalidParams(t *testing.T) {
	params := DefaultParams()
	params.Weights.Supply = big.NewInt(0)
	if _, err := NewEngine(params); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
	params = DefaultParams()
	params.Emission.HalvePeriod = 0
	if _, err := NewEngine(params); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestNegativeAmountRejected(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.engine.Mint(genesisHeight, makeAddress(1), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.Borrow(genesisHeight, makeAddress(1), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestHeightRegressionIsHardFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.mustOK(f.engine.Accrue(20))
	f.events.reset()

	_, err := f.engine.Accrue(19)
	if !errors.Is(err, ErrHeightRegressed) {
		t.Fatalf("expected ErrHeightRegressed, got %v", err)
	}
	minter := makeAddress(1)
	f.fund(f.engine.Underlying(), minter, ether(1))
	if _, err := f.engine.Mint(5, minter, ether(1)); !errors.Is(err, ErrHeightRegressed) {
		t.Fatalf("expected ErrHeightRegressed on mint, got %v", err)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("regression published records")
	}
	if st := f.emission(); st.AccrualHeight != 20 {
		t.Fatalf("emission height moved to %d", st.AccrualHeight)
	}
}

func TestOperationsBeforeStartHeightFail(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.Emission.StartHeight = 50 })
	if _, err := f.engine.Accrue(49); !errors.Is(err, ErrHeightRegressed) {
		t.Fatalf("expected ErrHeightRegressed, got %v", err)
	}
	f.mustOK(f.engine.Accrue(50))
}

// reentrantEmitter calls back into the engine while records are published.
type reentrantEmitter struct {
	engine *Engine
	err    error
	calls  int
}

func (r *reentrantEmitter) Emit(events.Event) {
	r.calls++
	if r.err == nil {
		_, r.err = r.engine.Accrue(1000)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	f := newFixture(t, nil)
	emitter := &reentrantEmitter{engine: f.engine}
	f.engine.SetEmitter(emitter)

	f.mustOK(f.engine.Accrue(genesisHeight + 10))
	if emitter.calls == 0 {
		t.Fatalf("emitter never invoked")
	}
	if !errors.Is(emitter.err, ErrReentrant) {
		t.Fatalf("expected ErrReentrant, got %v", emitter.err)
	}
	if err := f.engine.SetMintAllowed(false); err != nil {
		t.Fatalf("controls after reentrant attempt: %v", err)
	}
	if st := f.emission(); st.AccrualHeight != genesisHeight+10 {
		t.Fatalf("reentrant call moved accrual to %d", st.AccrualHeight)
	}
}

func TestPausedMarketRejectsOperations(t *testing.T) {
	f := newFixture(t, nil)
	pauses := nativecommon.NewPauseSet("market")
	f.engine.SetPauses(pauses)

	if _, err := f.engine.Accrue(genesisHeight); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set("market", false)
	f.mustOK(f.engine.Accrue(genesisHeight))
}

func TestSoftFailureKeepsAccruals(t *testing.T) {
	f := newFixture(t, nil)
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(10))
	f.pledge(genesisHeight, borrower, ether(1))
	f.events.reset()

	res, err := f.engine.Borrow(genesisHeight+30, borrower, ether(2))
	f.mustFail(res, err, InsufficientCollateral, BorrowInsufficientCollateral)
	if res.Operation != OpBorrow || res.Height != genesisHeight+30 || res.Account != borrower {
		t.Fatalf("unexpected result envelope: %+v", res)
	}
	if st := f.emission(); st.AccrualHeight != genesisHeight+30 {
		t.Fatalf("emission accrual rolled back on soft failure")
	}
	if m := f.borrowMarket(); m.AccrualHeight != genesisHeight+30 {
		t.Fatalf("interest accrual rolled back on soft failure")
	}
	// Records are published in order: accruals first, the failure last.
	last := f.events.events[len(f.events.events)-1]
	if last.EventType() != events.TypeFailure {
		t.Fatalf("failure record not last: %s", last.EventType())
	}
	failure := last.(events.Failure)
	if failure.Operation != string(OpBorrow) || failure.CodeName != "INSUFFICIENT_COLLATERAL" || failure.InfoName != "BORROW_INSUFFICIENT_COLLATERAL" {
		t.Fatalf("unexpected failure record %+v", failure)
	}
}

func TestSetWeightsAppliesAfterAccrual(t *testing.T) {
	f := newFixture(t, nil)
	f.mustOK(f.engine.Accrue(genesisHeight))
	pool := f.engine.Params().Beneficiaries.Pool
	rate := f.engine.Params().Emission.InitialRate

	f.mustOK(f.engine.SetWeights(genesisHeight+10, equalWeights()))
	segment := new(big.Int).Mul(rate, big.NewInt(10))
	wantOld := weightedPart(segment, DefaultWeights().Pool)
	if got := f.accrued(pool); got.Cmp(wantOld) != 0 {
		t.Fatalf("old weights: want %s got %s", wantOld, got)
	}

	f.mustOK(f.engine.Accrue(genesisHeight + 20))
	want := new(big.Int).Add(wantOld, weightedPart(segment, equalWeights().Pool))
	if got := f.accrued(pool); got.Cmp(want) != 0 {
		t.Fatalf("new weights: want %s got %s", want, got)
	}

	bad := equalWeights()
	bad.Technical = big.NewInt(0)
	if _, err := f.engine.SetWeights(genesisHeight+20, bad); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestSnapshotAndAccountViews(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetInterestModel(DefaultInterestModel())
	lender, borrower := makeAddress(1), makeAddress(2)
	f.supply(genesisHeight, lender, ether(100))
	f.pledge(genesisHeight, borrower, ether(40))
	f.mustOK(f.engine.Borrow(genesisHeight, borrower, ether(20)))
	f.mustOK(f.engine.Accrue(genesisHeight + 100))

	view, err := f.engine.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if view.Height != genesisHeight+100 {
		t.Fatalf("view height %d", view.Height)
	}
	if view.Cash.Cmp(ether(80)) != 0 {
		t.Fatalf("cash %s", view.Cash)
	}
	if view.TotalBorrows.Cmp(ether(20)) <= 0 {
		t.Fatalf("borrows did not grow: %s", view.TotalBorrows)
	}
	if view.TotalShareSupply.Cmp(ether(100)) != 0 || view.TotalCollaterals.Cmp(ether(40)) != 0 {
		t.Fatalf("unexpected totals %s/%s", view.TotalShareSupply, view.TotalCollaterals)
	}
	if view.ExchangeRate.Cmp(ExpScale()) <= 0 {
		t.Fatalf("exchange rate should exceed 1 once interest accrues: %s", view.ExchangeRate)
	}
	if view.BorrowRatePerHeight == nil || view.SupplyRatePerHeight == nil || view.SupplyRatePerHeight.Cmp(view.BorrowRatePerHeight) >= 0 {
		t.Fatalf("unexpected rates %v/%v", view.BorrowRatePerHeight, view.SupplyRatePerHeight)
	}
	if !view.Controls.MintAllowed || !view.Controls.BorrowAllowed {
		t.Fatalf("controls not reported")
	}

	lenderView, err := f.engine.Account(lender)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if lenderView.Shares.Cmp(ether(100)) != 0 || lenderView.Collateral.Sign() != 0 {
		t.Fatalf("unexpected lender view %+v", lenderView)
	}
	if lenderView.PendingReward.Sign() <= 0 {
		t.Fatalf("lender should have pending reward from the supply index")
	}
	borrowerView, err := f.engine.Account(borrower)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if borrowerView.BorrowBalance.Cmp(ether(20)) <= 0 || borrowerView.UnderlyingHeld.Cmp(ether(20)) != 0 {
		t.Fatalf("unexpected borrower view %+v", borrowerView)
	}

	// Reads never accrue.
	if st := f.emission(); st.AccrualHeight != genesisHeight+100 {
		t.Fatalf("view moved accrual")
	}
}

func TestTransfersArePublished(t *testing.T) {
	f := newFixture(t, nil)
	f.supply(genesisHeight, makeAddress(1), ether(3))
	transfers := f.events.ofType(events.TypeTransfer)
	if len(transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(transfers))
	}
	tr := transfers[0].(events.Transfer)
	if tr.Asset != "EFIL" || tr.To != f.engine.ModuleAddress() || tr.Amount.Cmp(ether(3)) != 0 {
		t.Fatalf("unexpected transfer %+v", tr)
	}
}
