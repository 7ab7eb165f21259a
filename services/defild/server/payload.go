package server

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"defil/crypto"
	"defil/native/market"
)

const maxRequestBody = 1 << 20

type operationRequest struct {
	Height   uint64 `json:"height"`
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	Borrower string `json:"borrower,omitempty"`
}

type accrueRequest struct {
	Height uint64 `json:"height"`
}

type weightsRequest struct {
	Height      uint64 `json:"height"`
	Pool        string `json:"pool"`
	MinerLeague string `json:"miner_league"`
	Operator    string `json:"operator"`
	Technical   string `json:"technical"`
	Supply      string `json:"supply"`
}

type controlsRequest struct {
	MintAllowed   *bool `json:"mint_allowed,omitempty"`
	BorrowAllowed *bool `json:"borrow_allowed,omitempty"`
	Paused        *bool `json:"paused,omitempty"`
}

type assetRequest struct {
	Account string `json:"account"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return badRequest("request body required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return badRequest("decode request: %v", err)
	}
	return nil
}

func parseAccount(field, value string) (crypto.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return crypto.Address{}, badRequest("%s required", field)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, badRequest("invalid %s: %v", field, err)
	}
	if addr.IsZero() {
		return crypto.Address{}, badRequest("%s must not be the zero address", field)
	}
	return addr, nil
}

// parseAmount reads a base-10 integer. "max" selects the sentinel understood
// by borrow and repay.
func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "max") {
		return new(big.Int).Set(market.MaxAmount), nil
	}
	if value == "" {
		return nil, badRequest("%s required", field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest("invalid %s %q", field, value)
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type failurePayload struct {
	Error     string `json:"error"`
	ErrorCode uint8  `json:"error_code"`
	Info      string `json:"info"`
	InfoCode  uint8  `json:"info_code"`
	Detail    uint64 `json:"detail"`
}

type resultPayload struct {
	OK        bool            `json:"ok"`
	Operation string          `json:"operation"`
	Height    uint64          `json:"height"`
	Account   string          `json:"account"`
	Amount    string          `json:"amount,omitempty"`
	Shares    string          `json:"shares,omitempty"`
	Failure   *failurePayload `json:"failure,omitempty"`
}

func newResultPayload(res *market.Result) resultPayload {
	out := resultPayload{
		OK:        res.OK(),
		Operation: string(res.Operation),
		Height:    res.Height,
		Account:   res.Account.String(),
	}
	if res.Amount != nil {
		out.Amount = res.Amount.String()
	}
	if res.Shares != nil {
		out.Shares = res.Shares.String()
	}
	if f := res.Failure; f != nil {
		out.Failure = &failurePayload{
			Error:     f.Error.String(),
			ErrorCode: uint8(f.Error),
			Info:      f.Info.String(),
			InfoCode:  uint8(f.Info),
			Detail:    f.Detail,
		}
	}
	return out
}

type weightsPayload struct {
	Pool        string `json:"pool"`
	MinerLeague string `json:"miner_league"`
	Operator    string `json:"operator"`
	Technical   string `json:"technical"`
	Supply      string `json:"supply"`
}

func newWeightsPayload(w market.Weights) weightsPayload {
	return weightsPayload{
		Pool:        amountString(w.Pool),
		MinerLeague: amountString(w.MinerLeague),
		Operator:    amountString(w.Operator),
		Technical:   amountString(w.Technical),
		Supply:      amountString(w.Supply),
	}
}

type marketPayload struct {
	Height              uint64         `json:"height"`
	Cash                string         `json:"cash"`
	TotalBorrows        string         `json:"total_borrows"`
	TotalReserves       string         `json:"total_reserves"`
	BorrowIndex         string         `json:"borrow_index"`
	TotalShareSupply    string         `json:"total_share_supply"`
	TotalCollaterals    string         `json:"total_collaterals"`
	ExchangeRate        string         `json:"exchange_rate"`
	BorrowRatePerHeight string         `json:"borrow_rate_per_height"`
	SupplyRatePerHeight string         `json:"supply_rate_per_height"`
	Emission            emissionView   `json:"emission"`
	MintAllowed         bool           `json:"mint_allowed"`
	BorrowAllowed       bool           `json:"borrow_allowed"`
	Paused              bool           `json:"paused"`
	Weights             weightsPayload `json:"weights"`
}

type emissionView struct {
	CurrentRate     string `json:"current_rate"`
	NextHalveHeight uint64 `json:"next_halve_height"`
	AccrualHeight   uint64 `json:"accrual_height"`
	SupplyIndex     string `json:"supply_index"`
}

func newMarketPayload(view *market.MarketView) marketPayload {
	return marketPayload{
		Height:              view.Height,
		Cash:                amountString(view.Cash),
		TotalBorrows:        amountString(view.TotalBorrows),
		TotalReserves:       amountString(view.TotalReserves),
		BorrowIndex:         amountString(view.BorrowIndex),
		TotalShareSupply:    amountString(view.TotalShareSupply),
		TotalCollaterals:    amountString(view.TotalCollaterals),
		ExchangeRate:        amountString(view.ExchangeRate),
		BorrowRatePerHeight: amountString(view.BorrowRatePerHeight),
		SupplyRatePerHeight: amountString(view.SupplyRatePerHeight),
		Emission: emissionView{
			CurrentRate:     amountString(view.Emission.CurrentRate),
			NextHalveHeight: view.Emission.NextHalveHeight,
			AccrualHeight:   view.Emission.AccrualHeight,
			SupplyIndex:     amountString(view.Emission.SupplyIndex),
		},
		MintAllowed:   view.Controls.MintAllowed,
		BorrowAllowed: view.Controls.BorrowAllowed,
		Weights:       newWeightsPayload(view.Controls.Weights),
	}
}

type accountPayload struct {
	Address        string `json:"address"`
	Shares         string `json:"shares"`
	Collateral     string `json:"collateral"`
	BorrowBalance  string `json:"borrow_balance"`
	AccruedReward  string `json:"accrued_reward"`
	PendingReward  string `json:"pending_reward"`
	UnderlyingHeld string `json:"underlying_held"`
}

func newAccountPayload(view *market.AccountView) accountPayload {
	return accountPayload{
		Address:        view.Address.String(),
		Shares:         amountString(view.Shares),
		Collateral:     amountString(view.Collateral),
		BorrowBalance:  amountString(view.BorrowBalance),
		AccruedReward:  amountString(view.AccruedReward),
		PendingReward:  amountString(view.PendingReward),
		UnderlyingHeld: amountString(view.UnderlyingHeld),
	}
}
