package market

import (
	"fmt"
	"log/slog"
	"math/big"

	"defil/core/events"
	"defil/crypto"
	nativecommon "defil/native/common"
	"defil/native/token"
)

const moduleName = "market"

// engineState is the journaled key/value store the engine runs on. Snapshot
// and RevertToSnapshot give every operation all-or-nothing semantics.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine runs the lending market: interest accrual on the borrow ledger,
// the halving reward emission, and the position ledgers gated by both.
//
// Engine is not safe for concurrent use; hosts serialise calls.
type Engine struct {
	state         engineState
	params        Params
	model         InterestRateModel
	moduleAddress crypto.Address

	underlying *token.Ledger
	collateral *token.Ledger
	reward     *token.Ledger

	emitter  events.Emitter
	recorder events.Recorder
	pauses   nativecommon.PauseView
	logger   *slog.Logger

	height  uint64
	entered bool
}

// NewEngine validates the parameters and constructs an engine. SetState must
// be called before any operation.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:        params.Clone(),
		model:         DefaultInterestModel(),
		moduleAddress: crypto.ModuleAddress(moduleName),
		emitter:       events.NoopEmitter{},
		logger:        slog.Default(),
	}, nil
}

// SetState wires the engine to the persistence layer. The asset ledgers share
// the same store so a reverted operation also reverts its transfers.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.underlying = token.NewLedger(state, e.params.Assets.Underlying)
	e.collateral = token.NewLedger(state, e.params.Assets.Collateral)
	e.reward = token.NewLedger(state, e.params.Assets.Reward)
}

// SetInterestModel replaces the rate model. Nil disables interest.
func (e *Engine) SetInterestModel(model InterestRateModel) { e.model = model }

// SetEmitter configures where committed records are published. Passing nil
// resets to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// ModuleAddress is the account holding the market's cash, collateral and
// undelivered rewards.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// Params returns a copy of the launch parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// Underlying, Collateral and Reward expose the asset ledgers so hosts can
// fund accounts and grant allowances to ModuleAddress.
func (e *Engine) Underlying() *token.Ledger { return e.underlying }
func (e *Engine) Collateral() *token.Ledger { return e.collateral }
func (e *Engine) Reward() *token.Ledger     { return e.reward }

// run executes one operation atomically. Accruals happen first; a hard error
// reverts the store to the snapshot taken on entry and drops buffered
// records, while a soft failure keeps the accruals and publishes a failure
// record alongside them.
func (e *Engine) run(op Operation, height uint64, account crypto.Address, action func() (*Result, error)) (*Result, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.entered {
		return nil, ErrReentrant
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.entered = true
	defer func() { e.entered = false }()

	snapshot := e.state.Snapshot()
	e.recorder.Reset()
	e.height = height

	res, err := e.prepare(height)
	if err == nil && action != nil {
		res, err = action()
	}
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.recorder.Reset()
		e.logger.Debug("market operation aborted",
			slog.String("operation", string(op)),
			slog.Uint64("height", height),
			slog.String("account", account.String()),
			slog.Any("error", err))
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	res.Operation = op
	res.Height = height
	res.Account = account
	if res.Failure != nil {
		e.recorder.Emit(events.Failure{
			Height:    height,
			Operation: string(op),
			Account:   account,
			Code:      uint8(res.Failure.Error),
			CodeName:  res.Failure.Error.String(),
			Info:      uint8(res.Failure.Info),
			InfoName:  res.Failure.Info.String(),
			Detail:    res.Failure.Detail,
		})
	}
	e.recorder.Flush(e.emitter)
	return res, nil
}

// prepare initialises the market on first use and runs both accruals.
func (e *Engine) prepare(height uint64) (*Result, error) {
	if err := e.ensureMarket(); err != nil {
		return nil, err
	}
	market, err := e.loadBorrowMarket()
	if err != nil {
		return nil, err
	}
	if height < market.AccrualHeight {
		return nil, fmt.Errorf("%w: %d < %d", ErrHeightRegressed, height, market.AccrualHeight)
	}
	if err := e.accrueInterest(height); err != nil {
		return nil, err
	}
	if err := e.accrueEmission(height); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Accrue brings interest and emission up to height without any other effect.
func (e *Engine) Accrue(height uint64) (*Result, error) {
	return e.run(OpAccrue, height, e.moduleAddress, nil)
}

// Mint supplies amount of the underlying asset and credits shares.
func (e *Engine) Mint(height uint64, minter crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpMint, height, minter, func() (*Result, error) {
		return e.mintFresh(minter, amount)
	})
}

// Redeem burns shares for the underlying asset.
func (e *Engine) Redeem(height uint64, redeemer crypto.Address, shares *big.Int) (*Result, error) {
	if err := validateAmount(shares); err != nil {
		return nil, err
	}
	return e.run(OpRedeem, height, redeemer, func() (*Result, error) {
		return e.redeemFresh(redeemer, shares, nil)
	})
}

// RedeemUnderlying burns however many shares are worth amount.
func (e *Engine) RedeemUnderlying(height uint64, redeemer crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpRedeemUnderlying, height, redeemer, func() (*Result, error) {
		return e.redeemFresh(redeemer, nil, amount)
	})
}

// Borrow lends amount of the underlying asset against the borrower's
// collateral. MaxAmount borrows as much as collateral and cash allow.
func (e *Engine) Borrow(height uint64, borrower crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpBorrow, height, borrower, func() (*Result, error) {
		return e.borrowFresh(borrower, amount)
	})
}

// Repay pays down the caller's own borrow. MaxAmount repays everything owed.
func (e *Engine) Repay(height uint64, borrower crypto.Address, amount *big.Int) (*Result, error) {
	return e.RepayBehalf(height, borrower, borrower, amount)
}

// RepayBehalf pays down borrower's debt with funds pulled from payer.
func (e *Engine) RepayBehalf(height uint64, payer, borrower crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpRepay, height, payer, func() (*Result, error) {
		return e.repayFresh(payer, borrower, amount)
	})
}

// Collateralize posts amount of the collateral asset.
func (e *Engine) Collateralize(height uint64, participant crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpCollateralize, height, participant, func() (*Result, error) {
		return e.collateralizeFresh(participant, amount)
	})
}

// RedeemCollateral withdraws posted collateral.
func (e *Engine) RedeemCollateral(height uint64, participant crypto.Address, amount *big.Int) (*Result, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return e.run(OpRedeemCollateral, height, participant, func() (*Result, error) {
		return e.redeemCollateralFresh(participant, amount)
	})
}

// ClaimReward pays out everything accrued to holder, including its share of
// the supply index.
func (e *Engine) ClaimReward(height uint64, holder crypto.Address) (*Result, error) {
	return e.run(OpClaimReward, height, holder, func() (*Result, error) {
		return e.claimReward(holder)
	})
}

// SetWeights replaces the distribution weights after accruing up to height
// with the old ones.
func (e *Engine) SetWeights(height uint64, weights Weights) (*Result, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return e.run(OpSetWeights, height, e.moduleAddress, func() (*Result, error) {
		controls, err := e.loadControls()
		if err != nil {
			return nil, err
		}
		controls.Weights = weights.Clone()
		if err := e.saveControls(controls); err != nil {
			return nil, err
		}
		return &Result{}, nil
	})
}

// SetMintAllowed toggles minting.
func (e *Engine) SetMintAllowed(allowed bool) error {
	return e.updateControls(func(c *Controls) { c.MintAllowed = allowed })
}

// SetBorrowAllowed toggles borrowing.
func (e *Engine) SetBorrowAllowed(allowed bool) error {
	return e.updateControls(func(c *Controls) { c.BorrowAllowed = allowed })
}

func (e *Engine) updateControls(apply func(*Controls)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.entered {
		return ErrReentrant
	}
	if err := e.ensureMarket(); err != nil {
		return err
	}
	controls, err := e.loadControls()
	if err != nil {
		return err
	}
	apply(controls)
	return e.saveControls(controls)
}

// transferOut pays amount from the module account and records the movement.
func (e *Engine) transferOut(ledger *token.Ledger, to crypto.Address, amount *big.Int) error {
	if err := ledger.Transfer(e.moduleAddress, to, amount); err != nil {
		return err
	}
	e.recorder.Emit(events.Transfer{Height: e.height, Asset: ledger.Symbol(), From: e.moduleAddress, To: to, Amount: clone(amount)})
	return nil
}

// transferIn pulls amount from the payer using the allowance granted to the
// module account.
func (e *Engine) transferIn(ledger *token.Ledger, from crypto.Address, amount *big.Int) error {
	if err := ledger.TransferFrom(e.moduleAddress, from, e.moduleAddress, amount); err != nil {
		return err
	}
	e.recorder.Emit(events.Transfer{Height: e.height, Asset: ledger.Symbol(), From: from, To: e.moduleAddress, Amount: clone(amount)})
	return nil
}

func (e *Engine) getCash() (*big.Int, error) {
	return e.underlying.BalanceOf(e.moduleAddress)
}
