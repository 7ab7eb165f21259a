package market

import (
	"math/big"
	"testing"

	"defil/core/events"
	"defil/core/state"
	"defil/crypto"
	"defil/native/token"
	"defil/storage"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) ofType(typ string) []events.Event {
	var out []events.Event
	for _, evt := range c.events {
		if evt.EventType() == typ {
			out = append(out, evt)
		}
	}
	return out
}

func (c *captureEmitter) reset() { c.events = nil }

type fixture struct {
	t      *testing.T
	state  *state.Manager
	engine *Engine
	events *captureEmitter
}

const genesisHeight = 1

func newFixture(t *testing.T, mutate func(*Params)) *fixture {
	t.Helper()
	params := DefaultParams()
	params.Emission.StartHeight = genesisHeight
	if mutate != nil {
		mutate(&params)
	}
	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	mgr := state.NewManager(storage.NewMemDB())
	engine.SetState(mgr)
	engine.SetInterestModel(nil)
	capture := new(captureEmitter)
	engine.SetEmitter(capture)
	return &fixture{t: t, state: mgr, engine: engine, events: capture}
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	raw[0] = 0xd1
	return crypto.MustNewAddress(crypto.DefilPrefix, raw)
}

func ether(v int64) *big.Int { return Exp(v) }

func (f *fixture) fund(ledger *token.Ledger, owner crypto.Address, amount *big.Int) {
	f.t.Helper()
	if err := ledger.Mint(owner, amount); err != nil {
		f.t.Fatalf("fund %s: %v", ledger.Symbol(), err)
	}
	if err := ledger.Approve(owner, f.engine.ModuleAddress(), amount); err != nil {
		f.t.Fatalf("approve %s: %v", ledger.Symbol(), err)
	}
}

func (f *fixture) balance(ledger *token.Ledger, owner crypto.Address) *big.Int {
	f.t.Helper()
	bal, err := ledger.BalanceOf(owner)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) mustOK(res *Result, err error) *Result {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected hard failure: %v", err)
	}
	if !res.OK() {
		f.t.Fatalf("unexpected soft failure: %s", res.Failure)
	}
	return res
}

func (f *fixture) mustFail(res *Result, err error, code ErrorCode, info FailureInfo) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected hard failure: %v", err)
	}
	if res.OK() {
		f.t.Fatalf("expected %s/%s, got success", code, info)
	}
	if res.Failure.Error != code || res.Failure.Info != info {
		f.t.Fatalf("expected %s/%s, got %s", code, info, res.Failure)
	}
	failures := f.events.ofType(events.TypeFailure)
	if len(failures) == 0 {
		f.t.Fatalf("expected failure record")
	}
	last := failures[len(failures)-1].(events.Failure)
	if last.Code != uint8(code) || last.Info != uint8(info) {
		f.t.Fatalf("failure record mismatch: %+v", last)
	}
}

func (f *fixture) emission() *EmissionState {
	f.t.Helper()
	st, err := f.engine.loadEmission()
	if err != nil {
		f.t.Fatalf("load emission: %v", err)
	}
	return st
}

func (f *fixture) borrowMarket() *BorrowMarket {
	f.t.Helper()
	m, err := f.engine.loadBorrowMarket()
	if err != nil {
		f.t.Fatalf("load borrow market: %v", err)
	}
	return m
}

func (f *fixture) accountBorrow(addr crypto.Address) *AccountBorrow {
	f.t.Helper()
	snap, err := f.engine.loadAccountBorrow(addr)
	if err != nil {
		f.t.Fatalf("load account borrow: %v", err)
	}
	return snap
}

func (f *fixture) accrued(addr crypto.Address) *big.Int {
	f.t.Helper()
	v, err := f.engine.accruedRewardOf(addr)
	if err != nil {
		f.t.Fatalf("load accrued: %v", err)
	}
	return v
}

// setBorrowMarket writes the borrow market directly, bypassing accrual.
func (f *fixture) setBorrowMarket(mutate func(*BorrowMarket)) {
	f.t.Helper()
	if err := f.engine.ensureMarket(); err != nil {
		f.t.Fatalf("ensure market: %v", err)
	}
	m := f.borrowMarket()
	mutate(m)
	if err := f.engine.saveBorrowMarket(m); err != nil {
		f.t.Fatalf("save borrow market: %v", err)
	}
}

// supply gives supplier amount of underlying and mints it into the market.
func (f *fixture) supply(height uint64, supplier crypto.Address, amount *big.Int) *Result {
	f.t.Helper()
	f.fund(f.engine.Underlying(), supplier, amount)
	return f.mustOK(f.engine.Mint(height, supplier, amount))
}

// pledge gives participant amount of collateral and posts it.
func (f *fixture) pledge(height uint64, participant crypto.Address, amount *big.Int) *Result {
	f.t.Helper()
	f.fund(f.engine.Collateral(), participant, amount)
	return f.mustOK(f.engine.Collateralize(height, participant, amount))
}

func equalWeights() Weights {
	fifth := mustBigInt("200000000000000000")
	return Weights{
		Pool:        new(big.Int).Set(fifth),
		MinerLeague: new(big.Int).Set(fifth),
		Operator:    new(big.Int).Set(fifth),
		Technical:   new(big.Int).Set(fifth),
		Supply:      new(big.Int).Set(fifth),
	}
}
