package market

import "defil/crypto"

type side uint8

const (
	sideShares side = iota
	sideCollateral
)

// canOpen enforces the rule that one identity never holds shares and
// collateral at the same time. Mint and collateralize both consult it before
// touching state.
func (e *Engine) canOpen(participant crypto.Address, want side) (bool, error) {
	switch want {
	case sideShares:
		collateral, err := e.collateralOf(participant)
		if err != nil {
			return false, err
		}
		return collateral.Sign() == 0, nil
	default:
		shares, err := e.sharesOf(participant)
		if err != nil {
			return false, err
		}
		return shares.Sign() == 0, nil
	}
}
