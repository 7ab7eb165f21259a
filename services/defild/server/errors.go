package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	nativecommon "defil/native/common"
	"defil/native/market"
	"defil/native/token"
)

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("authentication required")
	errRateLimited     = errors.New("rate limit exceeded")
	errUnknownAsset    = errors.New("unknown asset")
)

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps engine and ledger errors onto HTTP status codes. Soft market
// failures never reach here; they are reported in the response body.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidWeights),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, market.ErrHeightRegressed),
		errors.Is(err, market.ErrReentrant):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, market.ErrRepayTooLarge),
		errors.Is(err, market.ErrBorrowRateHigh):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" || status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
