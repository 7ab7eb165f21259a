package market

import (
	"math/big"

	"defil/core/events"
	"defil/crypto"
)

type distribution struct {
	pool          *big.Int
	minerLeague   *big.Int
	operator      *big.Int
	technical     *big.Int
	supply        *big.Int
	undistributed bool
}

// distribute splits amount by weight. Each part is floored on its own and
// the remainder stays unallocated in the module's reward balance.
func (e *Engine) distribute(st *EmissionState, weights Weights, totalSupply, amount *big.Int) (*distribution, error) {
	part := func(weight *big.Int) (*big.Int, error) {
		v, ok := fraction(amount, zeroIfNil(weight), expScale)
		if !ok {
			return nil, errOverflow
		}
		return v, nil
	}
	var (
		d   distribution
		err error
	)
	if d.pool, err = part(weights.Pool); err != nil {
		return nil, err
	}
	if d.minerLeague, err = part(weights.MinerLeague); err != nil {
		return nil, err
	}
	if d.operator, err = part(weights.Operator); err != nil {
		return nil, err
	}
	if d.technical, err = part(weights.Technical); err != nil {
		return nil, err
	}
	if d.supply, err = part(weights.Supply); err != nil {
		return nil, err
	}

	b := e.params.Beneficiaries
	credits := []struct {
		to     crypto.Address
		amount *big.Int
	}{
		{b.Pool, d.pool},
		{b.MinerLeague, d.minerLeague},
		{b.Operator, d.operator},
		{b.Technical, d.technical},
	}
	for _, c := range credits {
		if err := e.creditReward(c.to, c.amount); err != nil {
			return nil, err
		}
	}

	if totalSupply == nil || totalSupply.Sign() == 0 {
		d.undistributed = true
		if err := e.creditReward(b.Undistributed, d.supply); err != nil {
			return nil, err
		}
		return &d, nil
	}
	delta, ok := fraction(d.supply, doubleScale, totalSupply)
	if !ok {
		return nil, errOverflow
	}
	index, ok := addU256(st.SupplyIndex, delta)
	if !ok {
		return nil, errOverflow
	}
	st.SupplyIndex = index
	return &d, nil
}

func (e *Engine) holderIndex(holder crypto.Address) (*big.Int, error) {
	index := new(big.Int)
	ok, err := e.get(holderIndexKey(holder), index)
	if err != nil {
		return nil, err
	}
	if !ok || index.Sign() == 0 {
		return DoubleScale(), nil
	}
	return index, nil
}

// pendingSupplierReward is balance * (supplyIndex - holderIndex) / 1e36.
func (e *Engine) pendingSupplierReward(holder crypto.Address, supplyIndex *big.Int) (*big.Int, *big.Int, error) {
	last, err := e.holderIndex(holder)
	if err != nil {
		return nil, nil, err
	}
	balance, err := e.sharesOf(holder)
	if err != nil {
		return nil, nil, err
	}
	delta := new(big.Int).Sub(supplyIndex, last)
	if delta.Sign() <= 0 || balance.Sign() == 0 {
		return big.NewInt(0), last, nil
	}
	amount, ok := fraction(balance, delta, doubleScale)
	if !ok {
		return nil, nil, errOverflow
	}
	return amount, last, nil
}

// distributeSupplier realises holder's share of the supply index growth since
// its last update. It must run before any change to holder's share balance.
func (e *Engine) distributeSupplier(holder crypto.Address) error {
	st, err := e.loadEmission()
	if err != nil {
		return err
	}
	amount, _, err := e.pendingSupplierReward(holder, st.SupplyIndex)
	if err != nil {
		return err
	}
	if err := e.creditReward(holder, amount); err != nil {
		return err
	}
	if err := e.put(holderIndexKey(holder), st.SupplyIndex); err != nil {
		return err
	}
	e.recorder.Emit(events.DistributedReward{
		Height:      e.height,
		Holder:      holder,
		Amount:      amount,
		SupplyIndex: clone(st.SupplyIndex),
	})
	return nil
}

func (e *Engine) claimReward(holder crypto.Address) (*Result, error) {
	if err := e.distributeSupplier(holder); err != nil {
		return nil, err
	}
	accrued, err := e.accruedRewardOf(holder)
	if err != nil {
		return nil, err
	}
	if accrued.Sign() > 0 {
		if err := e.storeAmount(accruedKey(holder), big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := e.transferOut(e.reward, holder, accrued); err != nil {
			return nil, err
		}
	}
	e.recorder.Emit(events.ClaimReward{Height: e.height, Holder: holder, Amount: clone(accrued)})
	return &Result{Amount: accrued}, nil
}
