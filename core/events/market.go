package events

import (
	"math/big"
	"strconv"
	"strings"

	"defil/core/types"
	"defil/crypto"
)

const (
	TypeAccrueInterest    = "market.accrue_interest"
	TypeAccrueReward      = "market.accrue_reward"
	TypeDistributedReward = "market.distributed_reward"
	TypeMint              = "market.mint"
	TypeRedeem            = "market.redeem"
	TypeBorrow            = "market.borrow"
	TypeRepayBorrow       = "market.repay_borrow"
	TypeCollateralize     = "market.collateralize"
	TypeRedeemCollateral  = "market.redeem_collateral"
	TypeClaimReward       = "market.claim_reward"
	TypeFailure           = "market.failure"
	TypeTransfer          = "asset.transfer"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func heightString(h uint64) string {
	return strconv.FormatUint(h, 10)
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// AccrueInterest reports a borrow index update.
type AccrueInterest struct {
	Height              uint64
	CashPrior           *big.Int
	InterestAccumulated *big.Int
	BorrowIndex         *big.Int
	TotalBorrows        *big.Int
	TotalReserves       *big.Int
}

func (AccrueInterest) EventType() string { return TypeAccrueInterest }

func (e AccrueInterest) Event() *types.Event {
	return &types.Event{
		Type:   TypeAccrueInterest,
		Height: e.Height,
		Attributes: map[string]string{
			"cashPrior":           amountString(e.CashPrior),
			"interestAccumulated": amountString(e.InterestAccumulated),
			"borrowIndex":         amountString(e.BorrowIndex),
			"totalBorrows":        amountString(e.TotalBorrows),
			"totalReserves":       amountString(e.TotalReserves),
		},
	}
}

// AccrueReward reports one emission segment and how it was split.
type AccrueReward struct {
	Height      uint64
	StartHeight uint64
	EndHeight   uint64
	Rate        *big.Int
	Amount      *big.Int
	Pool        *big.Int
	MinerLeague *big.Int
	Operator    *big.Int
	Technical   *big.Int
	Supply      *big.Int
	// Undistributed is set when the supply part went to the undistributed
	// beneficiary because no shares were outstanding.
	Undistributed bool
	SupplyIndex   *big.Int
}

func (AccrueReward) EventType() string { return TypeAccrueReward }

func (e AccrueReward) Event() *types.Event {
	return &types.Event{
		Type:   TypeAccrueReward,
		Height: e.Height,
		Attributes: map[string]string{
			"startHeight":   heightString(e.StartHeight),
			"endHeight":     heightString(e.EndHeight),
			"rate":          amountString(e.Rate),
			"amount":        amountString(e.Amount),
			"pool":          amountString(e.Pool),
			"minerLeague":   amountString(e.MinerLeague),
			"operator":      amountString(e.Operator),
			"technical":     amountString(e.Technical),
			"supply":        amountString(e.Supply),
			"undistributed": strconv.FormatBool(e.Undistributed),
			"supplyIndex":   amountString(e.SupplyIndex),
		},
	}
}

// DistributedReward reports a holder's realised share of the supply index.
type DistributedReward struct {
	Height      uint64
	Holder      crypto.Address
	Amount      *big.Int
	SupplyIndex *big.Int
}

func (DistributedReward) EventType() string { return TypeDistributedReward }

func (e DistributedReward) Event() *types.Event {
	return &types.Event{
		Type:   TypeDistributedReward,
		Height: e.Height,
		Attributes: map[string]string{
			"holder":      e.Holder.String(),
			"amount":      amountString(e.Amount),
			"supplyIndex": amountString(e.SupplyIndex),
		},
	}
}

type Mint struct {
	Height uint64
	Minter crypto.Address
	Amount *big.Int
	Shares *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{
		Type:   TypeMint,
		Height: e.Height,
		Attributes: map[string]string{
			"minter": e.Minter.String(),
			"amount": amountString(e.Amount),
			"shares": amountString(e.Shares),
		},
	}
}

type Redeem struct {
	Height   uint64
	Redeemer crypto.Address
	Amount   *big.Int
	Shares   *big.Int
}

func (Redeem) EventType() string { return TypeRedeem }

func (e Redeem) Event() *types.Event {
	return &types.Event{
		Type:   TypeRedeem,
		Height: e.Height,
		Attributes: map[string]string{
			"redeemer": e.Redeemer.String(),
			"amount":   amountString(e.Amount),
			"shares":   amountString(e.Shares),
		},
	}
}

type Borrow struct {
	Height         uint64
	Borrower       crypto.Address
	Amount         *big.Int
	AccountBorrows *big.Int
	TotalBorrows   *big.Int
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Event() *types.Event {
	return &types.Event{
		Type:   TypeBorrow,
		Height: e.Height,
		Attributes: map[string]string{
			"borrower":       e.Borrower.String(),
			"amount":         amountString(e.Amount),
			"accountBorrows": amountString(e.AccountBorrows),
			"totalBorrows":   amountString(e.TotalBorrows),
		},
	}
}

type RepayBorrow struct {
	Height         uint64
	Payer          crypto.Address
	Borrower       crypto.Address
	Amount         *big.Int
	AccountBorrows *big.Int
	TotalBorrows   *big.Int
}

func (RepayBorrow) EventType() string { return TypeRepayBorrow }

func (e RepayBorrow) Event() *types.Event {
	return &types.Event{
		Type:   TypeRepayBorrow,
		Height: e.Height,
		Attributes: map[string]string{
			"payer":          e.Payer.String(),
			"borrower":       e.Borrower.String(),
			"amount":         amountString(e.Amount),
			"accountBorrows": amountString(e.AccountBorrows),
			"totalBorrows":   amountString(e.TotalBorrows),
		},
	}
}

type Collateralize struct {
	Height           uint64
	Participant      crypto.Address
	Amount           *big.Int
	TotalCollaterals *big.Int
}

func (Collateralize) EventType() string { return TypeCollateralize }

func (e Collateralize) Event() *types.Event {
	return &types.Event{
		Type:   TypeCollateralize,
		Height: e.Height,
		Attributes: map[string]string{
			"participant":      e.Participant.String(),
			"amount":           amountString(e.Amount),
			"totalCollaterals": amountString(e.TotalCollaterals),
		},
	}
}

type RedeemCollateral struct {
	Height           uint64
	Participant      crypto.Address
	Amount           *big.Int
	TotalCollaterals *big.Int
}

func (RedeemCollateral) EventType() string { return TypeRedeemCollateral }

func (e RedeemCollateral) Event() *types.Event {
	return &types.Event{
		Type:   TypeRedeemCollateral,
		Height: e.Height,
		Attributes: map[string]string{
			"participant":      e.Participant.String(),
			"amount":           amountString(e.Amount),
			"totalCollaterals": amountString(e.TotalCollaterals),
		},
	}
}

type ClaimReward struct {
	Height uint64
	Holder crypto.Address
	Amount *big.Int
}

func (ClaimReward) EventType() string { return TypeClaimReward }

func (e ClaimReward) Event() *types.Event {
	return &types.Event{
		Type:   TypeClaimReward,
		Height: e.Height,
		Attributes: map[string]string{
			"holder": e.Holder.String(),
			"amount": amountString(e.Amount),
		},
	}
}

// Failure reports a rejected operation. Accruals performed before the
// rejection stay committed.
type Failure struct {
	Height    uint64
	Operation string
	Account   crypto.Address
	Code      uint8
	CodeName  string
	Info      uint8
	InfoName  string
	Detail    uint64
}

func (Failure) EventType() string { return TypeFailure }

func (e Failure) Event() *types.Event {
	return &types.Event{
		Type:   TypeFailure,
		Height: e.Height,
		Attributes: map[string]string{
			"operation": e.Operation,
			"account":   e.Account.String(),
			"error":     strconv.FormatUint(uint64(e.Code), 10),
			"errorName": e.CodeName,
			"info":      strconv.FormatUint(uint64(e.Info), 10),
			"infoName":  e.InfoName,
			"detail":    strconv.FormatUint(e.Detail, 10),
		},
	}
}

// Transfer records an asset movement performed on behalf of the market.
type Transfer struct {
	Height uint64
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	asset := normalizeAsset(e.Asset)
	if asset == "" {
		asset = "UNKNOWN"
	}
	return &types.Event{
		Type:   TypeTransfer,
		Height: e.Height,
		Attributes: map[string]string{
			"asset":  asset,
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": amountString(e.Amount),
		},
	}
}
