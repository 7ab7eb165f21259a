package market

import (
	"fmt"
	"math/big"

	"defil/crypto"
)

var (
	keyEmission = []byte("market/emission")
	keyBorrow   = []byte("market/borrow")
	keyTotals   = []byte("market/totals")
	keyControls = []byte("market/controls")
)

func accountKey(prefix string, addr crypto.Address) []byte {
	return append([]byte(prefix), addr.Bytes()...)
}

func accountBorrowKey(addr crypto.Address) []byte { return accountKey("market/borrow/", addr) }
func collateralKey(addr crypto.Address) []byte    { return accountKey("market/collateral/", addr) }
func sharesKey(addr crypto.Address) []byte        { return accountKey("market/shares/", addr) }
func accruedKey(addr crypto.Address) []byte       { return accountKey("market/reward/accrued/", addr) }
func holderIndexKey(addr crypto.Address) []byte   { return accountKey("market/reward/index/", addr) }

func (e *Engine) get(key []byte, out interface{}) (bool, error) {
	ok, err := e.state.KVGet(key, out)
	if err != nil {
		return false, fmt.Errorf("market engine: load %s: %w", key, err)
	}
	return ok, nil
}

func (e *Engine) put(key []byte, value interface{}) error {
	if err := e.state.KVPut(key, value); err != nil {
		return fmt.Errorf("market engine: store %s: %w", key, err)
	}
	return nil
}

func (e *Engine) loadAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := e.get(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// storeAmount drops the record once the amount reaches zero; loadAmount
// reads a missing record as zero.
func (e *Engine) storeAmount(key []byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		if err := e.state.KVDelete(key); err != nil {
			return fmt.Errorf("market engine: delete %s: %w", key, err)
		}
		return nil
	}
	return e.put(key, value)
}

// ensureMarket writes the genesis records the first time the engine touches
// an empty store.
func (e *Engine) ensureMarket() error {
	ok, err := e.get(keyEmission, nil)
	if err != nil || ok {
		return err
	}
	start := e.params.Emission.StartHeight
	emission := &EmissionState{
		CurrentRate:     clone(e.params.Emission.InitialRate),
		NextHalveHeight: start + e.params.Emission.HalvePeriod,
		AccrualHeight:   start,
		SupplyIndex:     DoubleScale(),
	}
	if err := e.saveEmission(emission); err != nil {
		return err
	}
	borrow := &BorrowMarket{
		TotalBorrows:  big.NewInt(0),
		TotalReserves: big.NewInt(0),
		BorrowIndex:   ExpScale(),
		AccrualHeight: start,
	}
	if err := e.saveBorrowMarket(borrow); err != nil {
		return err
	}
	if err := e.saveTotals(&Totals{TotalShareSupply: big.NewInt(0), TotalCollaterals: big.NewInt(0)}); err != nil {
		return err
	}
	return e.saveControls(&Controls{
		MintAllowed:   e.params.MintAllowed,
		BorrowAllowed: e.params.BorrowAllowed,
		Weights:       e.params.Weights.Clone(),
	})
}

func (e *Engine) loadEmission() (*EmissionState, error) {
	st := new(EmissionState)
	ok, err := e.get(keyEmission, st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilMarket
	}
	st.CurrentRate = zeroIfNil(st.CurrentRate)
	if st.SupplyIndex == nil || st.SupplyIndex.Sign() == 0 {
		st.SupplyIndex = DoubleScale()
	}
	return st, nil
}

func (e *Engine) saveEmission(st *EmissionState) error { return e.put(keyEmission, st) }

func (e *Engine) loadBorrowMarket() (*BorrowMarket, error) {
	m := new(BorrowMarket)
	ok, err := e.get(keyBorrow, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilMarket
	}
	m.TotalBorrows = zeroIfNil(m.TotalBorrows)
	m.TotalReserves = zeroIfNil(m.TotalReserves)
	if m.BorrowIndex == nil || m.BorrowIndex.Sign() == 0 {
		m.BorrowIndex = ExpScale()
	}
	return m, nil
}

func (e *Engine) saveBorrowMarket(m *BorrowMarket) error { return e.put(keyBorrow, m) }

func (e *Engine) loadTotals() (*Totals, error) {
	t := new(Totals)
	if _, err := e.get(keyTotals, t); err != nil {
		return nil, err
	}
	t.TotalShareSupply = zeroIfNil(t.TotalShareSupply)
	t.TotalCollaterals = zeroIfNil(t.TotalCollaterals)
	return t, nil
}

func (e *Engine) saveTotals(t *Totals) error { return e.put(keyTotals, t) }

func (e *Engine) loadControls() (*Controls, error) {
	c := new(Controls)
	ok, err := e.get(keyControls, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilMarket
	}
	return c, nil
}

func (e *Engine) saveControls(c *Controls) error { return e.put(keyControls, c) }

func (e *Engine) loadAccountBorrow(addr crypto.Address) (*AccountBorrow, error) {
	snap := new(AccountBorrow)
	if _, err := e.get(accountBorrowKey(addr), snap); err != nil {
		return nil, err
	}
	snap.Principal = zeroIfNil(snap.Principal)
	snap.InterestIndex = zeroIfNil(snap.InterestIndex)
	return snap, nil
}

func (e *Engine) saveAccountBorrow(addr crypto.Address, snap *AccountBorrow) error {
	return e.put(accountBorrowKey(addr), snap)
}

func (e *Engine) sharesOf(addr crypto.Address) (*big.Int, error) {
	return e.loadAmount(sharesKey(addr))
}

func (e *Engine) collateralOf(addr crypto.Address) (*big.Int, error) {
	return e.loadAmount(collateralKey(addr))
}

func (e *Engine) accruedRewardOf(addr crypto.Address) (*big.Int, error) {
	return e.loadAmount(accruedKey(addr))
}

func (e *Engine) creditReward(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	current, err := e.accruedRewardOf(addr)
	if err != nil {
		return err
	}
	return e.storeAmount(accruedKey(addr), current.Add(current, amount))
}
