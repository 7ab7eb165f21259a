package market

import (
	"log/slog"
	"math/big"

	"defil/core/events"
	"defil/crypto"
)

// accrueEmission integrates the reward schedule from the last accrual height
// to height. The interval is walked segment by segment, each ending at the
// next halving or at height, so the floor rounding of every segment matches
// what a caller accruing at each boundary would have seen. One AccrueReward
// record is produced per non-empty segment.
func (e *Engine) accrueEmission(height uint64) error {
	st, err := e.loadEmission()
	if err != nil {
		return err
	}
	if height <= st.AccrualHeight {
		return nil
	}
	minRate := e.params.Emission.MinRate
	if !st.Exhausted(minRate) {
		controls, err := e.loadControls()
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		cursor := st.AccrualHeight
		for cursor < height {
			if st.NextHalveHeight <= cursor {
				if e.halve(st) {
					break
				}
				continue
			}
			end := height
			if st.NextHalveHeight < end {
				end = st.NextHalveHeight
			}
			if err := e.emitSegment(st, controls.Weights, totals.TotalShareSupply, cursor, end); err != nil {
				return err
			}
			cursor = end
			if cursor == st.NextHalveHeight && e.halve(st) {
				break
			}
		}
		if st.Exhausted(minRate) {
			e.logger.Warn("reward emission exhausted",
				slog.Uint64("height", height),
				slog.String("rate", st.CurrentRate.String()))
		}
	}
	st.AccrualHeight = height
	return e.saveEmission(st)
}

// halve moves the schedule past a halving boundary and reports whether the
// emission is now exhausted.
func (e *Engine) halve(st *EmissionState) bool {
	st.CurrentRate = new(big.Int).Rsh(st.CurrentRate, 1)
	st.NextHalveHeight += e.params.Emission.HalvePeriod
	return st.Exhausted(e.params.Emission.MinRate)
}

func (e *Engine) emitSegment(st *EmissionState, weights Weights, totalSupply *big.Int, start, end uint64) error {
	length := new(big.Int).SetUint64(end - start)
	amount, ok := mulU256(st.CurrentRate, length)
	if !ok {
		return errOverflow
	}
	parts, err := e.distribute(st, weights, totalSupply, amount)
	if err != nil {
		return err
	}
	if err := e.reward.Mint(e.moduleAddress, amount); err != nil {
		return err
	}
	if amount.Sign() > 0 {
		e.recorder.Emit(events.Transfer{Height: e.height, Asset: e.reward.Symbol(), From: crypto.Address{}, To: e.moduleAddress, Amount: clone(amount)})
	}
	e.recorder.Emit(events.AccrueReward{
		Height:        e.height,
		StartHeight:   start,
		EndHeight:     end,
		Rate:          clone(st.CurrentRate),
		Amount:        amount,
		Pool:          parts.pool,
		MinerLeague:   parts.minerLeague,
		Operator:      parts.operator,
		Technical:     parts.technical,
		Supply:        parts.supply,
		Undistributed: parts.undistributed,
		SupplyIndex:   clone(st.SupplyIndex),
	})
	return nil
}
