package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"defil/crypto"
	"defil/native/market"
)

const (
	ModelWhitePaper = "whitepaper"
	ModelJump       = "jump"
)

var mantissa = new(big.Rat).SetInt(market.ExpScale())

// MarketParams converts the market section into engine parameters.
func (c *Config) MarketParams() (market.Params, error) {
	m := c.Market
	params := market.DefaultParams()
	var err error
	if params.CollateralFactor, err = parseDecimal(m.CollateralFactor); err != nil {
		return params, fmt.Errorf("market.CollateralFactor: %w", err)
	}
	if params.ReserveFactor, err = parseDecimal(m.ReserveFactor); err != nil {
		return params, fmt.Errorf("market.ReserveFactor: %w", err)
	}
	if params.InitialExchangeRate, err = parseDecimal(m.InitialExchangeRate); err != nil {
		return params, fmt.Errorf("market.InitialExchangeRate: %w", err)
	}
	params.MintAllowed = m.MintAllowed
	params.BorrowAllowed = m.BorrowAllowed

	if params.Emission.InitialRate, err = parseUintAmount(m.Emission.InitialRate); err != nil {
		return params, fmt.Errorf("market.emission.InitialRate: %w", err)
	}
	if params.Emission.MinRate, err = parseUintAmount(m.Emission.MinRate); err != nil {
		return params, fmt.Errorf("market.emission.MinRate: %w", err)
	}
	params.Emission.HalvePeriod = m.Emission.HalvePeriod
	params.Emission.StartHeight = m.Emission.StartHeight

	weights := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"Pool", m.Weights.Pool, &params.Weights.Pool},
		{"MinerLeague", m.Weights.MinerLeague, &params.Weights.MinerLeague},
		{"Operator", m.Weights.Operator, &params.Weights.Operator},
		{"Technical", m.Weights.Technical, &params.Weights.Technical},
		{"Supply", m.Weights.Supply, &params.Weights.Supply},
	}
	for _, w := range weights {
		if *w.dst, err = parseDecimal(w.raw); err != nil {
			return params, fmt.Errorf("market.weights.%s: %w", w.name, err)
		}
	}

	beneficiaries := []struct {
		name string
		raw  string
		dst  *crypto.Address
	}{
		{"Pool", m.Beneficiaries.Pool, &params.Beneficiaries.Pool},
		{"MinerLeague", m.Beneficiaries.MinerLeague, &params.Beneficiaries.MinerLeague},
		{"Operator", m.Beneficiaries.Operator, &params.Beneficiaries.Operator},
		{"Technical", m.Beneficiaries.Technical, &params.Beneficiaries.Technical},
		{"Undistributed", m.Beneficiaries.Undistributed, &params.Beneficiaries.Undistributed},
	}
	for _, b := range beneficiaries {
		raw := strings.TrimSpace(b.raw)
		if raw == "" {
			continue
		}
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return params, fmt.Errorf("market.beneficiaries.%s: %w", b.name, err)
		}
		*b.dst = addr
	}

	params.Assets = market.Assets{
		Underlying: m.Assets.Underlying,
		Collateral: m.Assets.Collateral,
		Reward:     m.Assets.Reward,
	}
	return params, nil
}

// InterestModel builds the configured borrow rate curve.
func (c *Config) InterestModel() (market.InterestRateModel, error) {
	in := c.Market.Interest
	switch in.Model {
	case ModelWhitePaper, "":
		base, err := parseDecimal(in.BaseRatePerYear)
		if err != nil {
			return nil, fmt.Errorf("market.interest.BaseRatePerYear: %w", err)
		}
		mult, err := parseDecimal(in.MultiplierPerYear)
		if err != nil {
			return nil, fmt.Errorf("market.interest.MultiplierPerYear: %w", err)
		}
		return market.NewWhitePaperModel(base, mult, in.BlocksPerYear), nil
	case ModelJump:
		values := make([]float64, 4)
		for i, raw := range []string{in.BaseRatePerYear, in.MultiplierPerYear, in.JumpMultiplierPerYear, in.Kink} {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("market.interest: invalid jump parameter %q", raw)
			}
			values[i] = v
		}
		if values[3] > 1 {
			return nil, fmt.Errorf("market.interest.Kink must not exceed 1")
		}
		return market.NewJumpRateModel(values[0], values[1], values[2], values[3], in.BlocksPerYear), nil
	default:
		return nil, fmt.Errorf("market.interest.Model: unknown model %q", in.Model)
	}
}

// parseDecimal turns a non-negative decimal such as "0.25" into a 1e18
// mantissa. Digits beyond the mantissa precision are truncated.
func parseDecimal(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	r, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", raw)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("decimal %q must not be negative", raw)
	}
	r.Mul(r, mantissa)
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return v, nil
}
