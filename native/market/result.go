package market

import (
	"math/big"

	"defil/crypto"
)

// Operation names the public entry points. They double as the operation
// label of failure records.
type Operation string

const (
	OpAccrue           Operation = "accrue"
	OpMint             Operation = "mint"
	OpRedeem           Operation = "redeem"
	OpRedeemUnderlying Operation = "redeem_underlying"
	OpBorrow           Operation = "borrow"
	OpRepay            Operation = "repay"
	OpCollateralize    Operation = "collateralize"
	OpRedeemCollateral Operation = "redeem_collateral"
	OpClaimReward      Operation = "claim_reward"
	OpSetWeights       Operation = "set_weights"
)

// Result is returned by every operation that did not hard-fail. A non-nil
// Failure means the action was rejected after the accruals committed.
type Result struct {
	Operation Operation
	Height    uint64
	Account   crypto.Address
	Failure   *Failure
	// Amount is the asset amount moved by the operation: underlying for
	// mint, redeem, borrow and repay, collateral for the collateral
	// operations and reward for claims.
	Amount *big.Int
	// Shares is set by mint and redeem.
	Shares *big.Int
}

// OK reports whether the action itself succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Failure == nil
}

func rejected(op Operation, height uint64, account crypto.Address, f *Failure) *Result {
	return &Result{Operation: op, Height: height, Account: account, Failure: f}
}
