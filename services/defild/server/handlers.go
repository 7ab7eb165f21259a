package server

import (
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"defil/native/market"
	"defil/native/token"
)

// execute runs fn under the engine lock and commits the state when it
// returns without error. Ledger writes made outside the engine are rolled
// back on failure as well.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.Snapshot()
	payload, err := fn()
	if err != nil {
		s.state.RevertToSnapshot(snapshot)
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("request failed",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		writeJSONError(w, status, err)
		return
	}
	if err := s.state.Commit(); err != nil {
		s.logger.Error("state commit failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, func() (interface{}, error) {
		view, err := s.engine.Snapshot()
		if err != nil {
			return nil, err
		}
		out := newMarketPayload(view)
		if s.pauses != nil {
			out.Paused = s.pauses.IsPaused(pauseModule)
		}
		return out, nil
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount("address", chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		view, err := s.engine.Account(addr)
		if err != nil {
			return nil, err
		}
		return newAccountPayload(view), nil
	})
}

func (s *Server) ledger(symbol string) (*token.Ledger, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, ledger := range []*token.Ledger{s.engine.Underlying(), s.engine.Collateral(), s.engine.Reward()} {
		if ledger != nil && ledger.Symbol() == symbol {
			return ledger, nil
		}
	}
	return nil, errUnknownAsset
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount("address", chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		ledger, err := s.ledger(chi.URLParam(r, "symbol"))
		if err != nil {
			return nil, err
		}
		balance, err := ledger.BalanceOf(addr)
		if err != nil {
			return nil, err
		}
		allowance, err := ledger.Allowance(addr, s.engine.ModuleAddress())
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"asset":            ledger.Symbol(),
			"address":          addr.String(),
			"balance":          balance.String(),
			"market_allowance": allowance.String(),
		}, nil
	})
}

func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		res, err := s.engine.Accrue(req.Height)
		if err != nil {
			return nil, err
		}
		return newResultPayload(res), nil
	})
}

// handleOperation serves the participant entry points. Soft failures are
// answered with 200 and ok=false because their accruals were committed.
func (s *Server) handleOperation(op market.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operationRequest
		if err := decodeRequest(r, &req); err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		account, err := parseAccount("account", req.Account)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		var amount *big.Int
		if op != market.OpClaimReward {
			if amount, err = parseAmount("amount", req.Amount); err != nil {
				writeJSONError(w, statusFor(err), err)
				return
			}
		}
		borrower := account
		if op == market.OpRepay && strings.TrimSpace(req.Borrower) != "" {
			if borrower, err = parseAccount("borrower", req.Borrower); err != nil {
				writeJSONError(w, statusFor(err), err)
				return
			}
		}

		s.execute(w, r, func() (interface{}, error) {
			var (
				res *market.Result
				err error
			)
			switch op {
			case market.OpMint:
				res, err = s.engine.Mint(req.Height, account, amount)
			case market.OpRedeem:
				res, err = s.engine.Redeem(req.Height, account, amount)
			case market.OpRedeemUnderlying:
				res, err = s.engine.RedeemUnderlying(req.Height, account, amount)
			case market.OpBorrow:
				res, err = s.engine.Borrow(req.Height, account, amount)
			case market.OpRepay:
				res, err = s.engine.RepayBehalf(req.Height, account, borrower, amount)
			case market.OpCollateralize:
				res, err = s.engine.Collateralize(req.Height, account, amount)
			case market.OpRedeemCollateral:
				res, err = s.engine.RedeemCollateral(req.Height, account, amount)
			case market.OpClaimReward:
				res, err = s.engine.ClaimReward(req.Height, account)
			default:
				return nil, badRequest("unsupported operation %q", op)
			}
			if err != nil {
				return nil, err
			}
			return newResultPayload(res), nil
		})
	}
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	owner, err := parseAccount("account", req.Account)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	spender := s.engine.ModuleAddress()
	if strings.TrimSpace(req.Spender) != "" {
		if spender, err = parseAccount("spender", req.Spender); err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		ledger, err := s.ledger(chi.URLParam(r, "symbol"))
		if err != nil {
			return nil, err
		}
		if err := ledger.Approve(owner, spender, amount); err != nil {
			return nil, err
		}
		return map[string]string{
			"asset":     ledger.Symbol(),
			"owner":     owner.String(),
			"spender":   spender.String(),
			"allowance": amount.String(),
		}, nil
	})
}

func (s *Server) handleAssetMint(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	to, err := parseAccount("account", req.Account)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	if amount.Cmp(market.MaxAmount) == 0 {
		err := badRequest("amount must be explicit")
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		ledger, err := s.ledger(chi.URLParam(r, "symbol"))
		if err != nil {
			return nil, err
		}
		if err := ledger.Mint(to, amount); err != nil {
			return nil, err
		}
		balance, err := ledger.BalanceOf(to)
		if err != nil {
			return nil, err
		}
		s.logger.Info("asset minted",
			slog.String("asset", ledger.Symbol()),
			slog.String("account", to.String()),
			slog.String("amount", amount.String()))
		return map[string]string{
			"asset":   ledger.Symbol(),
			"address": to.String(),
			"balance": balance.String(),
		}, nil
	})
}

func (s *Server) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	var weights market.Weights
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"pool", req.Pool, &weights.Pool},
		{"miner_league", req.MinerLeague, &weights.MinerLeague},
		{"operator", req.Operator, &weights.Operator},
		{"technical", req.Technical, &weights.Technical},
		{"supply", req.Supply, &weights.Supply},
	}
	for _, field := range fields {
		value, err := parseAmount(field.name, field.value)
		if err != nil {
			writeJSONError(w, statusFor(err), err)
			return
		}
		*field.dst = value
	}
	s.execute(w, r, func() (interface{}, error) {
		res, err := s.engine.SetWeights(req.Height, weights)
		if err != nil {
			return nil, err
		}
		return newResultPayload(res), nil
	})
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	if req.Paused != nil && s.pauses == nil {
		err := badRequest("pausing is not configured")
		writeJSONError(w, statusFor(err), err)
		return
	}
	s.execute(w, r, func() (interface{}, error) {
		if req.MintAllowed != nil {
			if err := s.engine.SetMintAllowed(*req.MintAllowed); err != nil {
				return nil, err
			}
		}
		if req.BorrowAllowed != nil {
			if err := s.engine.SetBorrowAllowed(*req.BorrowAllowed); err != nil {
				return nil, err
			}
		}
		if req.Paused != nil {
			s.pauses.Set(pauseModule, *req.Paused)
			s.logger.Warn("market pause toggled", slog.Bool("paused", *req.Paused))
		}
		view, err := s.engine.Snapshot()
		if err != nil {
			return nil, err
		}
		out := newMarketPayload(view)
		if s.pauses != nil {
			out.Paused = s.pauses.IsPaused(pauseModule)
		}
		return out, nil
	})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	after, err := parseQueryUint(query.Get("after"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, badRequest("invalid after: %v", err))
		return
	}
	limit, err := parseQueryUint(query.Get("limit"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, badRequest("invalid limit: %v", err))
		return
	}
	records, err := s.audit.List(r.Context(), after, int(limit))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	seq, head := s.audit.Head()
	if err := s.audit.Verify(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "seq": seq, "head": head, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "seq": seq, "head": head})
}

func parseQueryUint(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseUint(value, 10, 32)
}
