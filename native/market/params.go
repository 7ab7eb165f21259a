package market

import (
	"fmt"
	"math/big"

	"defil/crypto"
)

// Weights splits each emission segment between the fixed beneficiaries and
// the share holders. Every weight is a 1e18 mantissa.
type Weights struct {
	Pool        *big.Int
	MinerLeague *big.Int
	Operator    *big.Int
	Technical   *big.Int
	Supply      *big.Int
}

// Clone returns a deep copy of the weights.
func (w Weights) Clone() Weights {
	return Weights{
		Pool:        clone(w.Pool),
		MinerLeague: clone(w.MinerLeague),
		Operator:    clone(w.Operator),
		Technical:   clone(w.Technical),
		Supply:      clone(w.Supply),
	}
}

// Sum returns the total of the five weights.
func (w Weights) Sum() *big.Int {
	sum := new(big.Int)
	for _, v := range []*big.Int{w.Pool, w.MinerLeague, w.Operator, w.Technical, w.Supply} {
		sum.Add(sum, zeroIfNil(v))
	}
	return sum
}

// Validate checks that every weight is non-negative and that they sum to
// exactly 1e18.
func (w Weights) Validate() error {
	for _, v := range []*big.Int{w.Pool, w.MinerLeague, w.Operator, w.Technical, w.Supply} {
		if v == nil || v.Sign() < 0 {
			return ErrInvalidWeights
		}
	}
	if w.Sum().Cmp(expScale) != 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidWeights, w.Sum())
	}
	return nil
}

// EmissionParams are the constants of the halving schedule.
type EmissionParams struct {
	InitialRate *big.Int
	MinRate     *big.Int
	HalvePeriod uint64
	StartHeight uint64
}

// Beneficiaries receive the fixed-weight parts of every emission segment.
// Undistributed collects the supply part while no shares are outstanding.
type Beneficiaries struct {
	Pool          crypto.Address
	MinerLeague   crypto.Address
	Operator      crypto.Address
	Technical     crypto.Address
	Undistributed crypto.Address
}

// Assets names the ledgers the market moves funds on.
type Assets struct {
	Underlying string
	Collateral string
	Reward     string
}

// Params configures a market at initialisation.
type Params struct {
	// CollateralFactor is the amount borrowable per unit of collateral with a
	// 1e18 mantissa. 1e18 compares collateral 1:1 with the borrowed amount.
	CollateralFactor *big.Int
	// ReserveFactor is the share of accrued interest set aside as reserves.
	ReserveFactor *big.Int
	// InitialExchangeRate prices shares while none are outstanding.
	InitialExchangeRate *big.Int
	MintAllowed         bool
	BorrowAllowed       bool
	Weights             Weights
	Emission            EmissionParams
	Beneficiaries       Beneficiaries
	Assets              Assets
}

var (
	defaultInitialRate = mustBigInt("86805721000000000000")
	defaultMinRate     = mustBigInt("170000000000000")
)

// DefaultHalvePeriod is the number of heights between two halvings.
const DefaultHalvePeriod uint64 = 576_000

// DefaultEmissionParams returns the launch schedule: 86.805721 reward units
// per height halving every 576000 heights until the rate drops below
// 0.00017, for a total close to 100,000,000 units.
func DefaultEmissionParams() EmissionParams {
	return EmissionParams{
		InitialRate: new(big.Int).Set(defaultInitialRate),
		MinRate:     new(big.Int).Set(defaultMinRate),
		HalvePeriod: DefaultHalvePeriod,
	}
}

// DefaultWeights returns the launch distribution.
func DefaultWeights() Weights {
	return Weights{
		Pool:        mustBigInt("250000000000000000"),
		MinerLeague: mustBigInt("100000000000000000"),
		Operator:    mustBigInt("30000000000000000"),
		Technical:   mustBigInt("20000000000000000"),
		Supply:      mustBigInt("600000000000000000"),
	}
}

// DefaultParams returns the parameters the market launches with.
func DefaultParams() Params {
	return Params{
		CollateralFactor:    ExpScale(),
		ReserveFactor:       big.NewInt(0),
		InitialExchangeRate: ExpScale(),
		MintAllowed:         true,
		BorrowAllowed:       true,
		Weights:             DefaultWeights(),
		Emission:            DefaultEmissionParams(),
		Beneficiaries: Beneficiaries{
			Pool:          crypto.ModuleAddress("market/pool"),
			MinerLeague:   crypto.ModuleAddress("market/miner-league"),
			Operator:      crypto.ModuleAddress("market/operator"),
			Technical:     crypto.ModuleAddress("market/technical"),
			Undistributed: crypto.ModuleAddress("market/undistributed"),
		},
		Assets: Assets{Underlying: "EFIL", Collateral: "MFIL", Reward: "DFL"},
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.CollateralFactor == nil || p.CollateralFactor.Sign() < 0 {
		return fmt.Errorf("%w: collateral factor must be non-negative", ErrInvalidParams)
	}
	if p.ReserveFactor == nil || p.ReserveFactor.Sign() < 0 || p.ReserveFactor.Cmp(expScale) > 0 {
		return fmt.Errorf("%w: reserve factor must be within [0, 1e18]", ErrInvalidParams)
	}
	if p.InitialExchangeRate == nil || p.InitialExchangeRate.Sign() <= 0 {
		return fmt.Errorf("%w: initial exchange rate must be positive", ErrInvalidParams)
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.Emission.InitialRate == nil || p.Emission.InitialRate.Sign() < 0 {
		return fmt.Errorf("%w: initial emission rate must be non-negative", ErrInvalidParams)
	}
	if p.Emission.MinRate == nil || p.Emission.MinRate.Sign() < 0 {
		return fmt.Errorf("%w: minimum emission rate must be non-negative", ErrInvalidParams)
	}
	if p.Emission.HalvePeriod == 0 {
		return fmt.Errorf("%w: halve period must be positive", ErrInvalidParams)
	}
	if p.Assets.Underlying == "" || p.Assets.Collateral == "" || p.Assets.Reward == "" {
		return fmt.Errorf("%w: asset symbols required", ErrInvalidParams)
	}
	seen := map[string]bool{}
	for _, sym := range []string{p.Assets.Underlying, p.Assets.Collateral, p.Assets.Reward} {
		if seen[sym] {
			return fmt.Errorf("%w: asset %s listed twice", ErrInvalidParams, sym)
		}
		seen[sym] = true
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.CollateralFactor = clone(p.CollateralFactor)
	out.ReserveFactor = clone(p.ReserveFactor)
	out.InitialExchangeRate = clone(p.InitialExchangeRate)
	out.Weights = p.Weights.Clone()
	out.Emission.InitialRate = clone(p.Emission.InitialRate)
	out.Emission.MinRate = clone(p.Emission.MinRate)
	return out
}
