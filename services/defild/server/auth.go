package server

import (
	"log/slog"
	"net/http"
	"strings"

	"defil/observability/logging"
	"defil/services/defild/config"
)

// authenticator accepts requests carrying one of the configured API tokens,
// either as a bearer token or in the X-API-Token header.
type authenticator struct {
	tokens         map[string]struct{}
	anonymousReads bool
	logger         *slog.Logger
}

func newAuthenticator(cfg config.AuthConfig, logger *slog.Logger) *authenticator {
	tokens := make(map[string]struct{})
	for _, token := range cfg.APITokens {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		tokens[trimmed] = struct{}{}
	}
	return &authenticator{tokens: tokens, anonymousReads: cfg.AllowAnonymousReads, logger: logger}
}

func (a *authenticator) tokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}

func (a *authenticator) authenticate(r *http.Request) bool {
	if a == nil || len(a.tokens) == 0 {
		return false
	}
	token := a.tokenFromRequest(r)
	if token == "" {
		return false
	}
	if _, ok := a.tokens[token]; ok {
		return true
	}
	if a.logger != nil {
		a.logger.Warn("api token rejected",
			slog.String("client", clientID(r)),
			slog.String("route", r.URL.Path),
			slog.String("token_hint", logging.TokenHint(token)))
	}
	return false
}

// requireToken rejects unauthenticated requests.
func (a *authenticator) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authenticate(r) {
			writeJSONError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireReader lets anonymous callers through when reads are public.
func (a *authenticator) requireReader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authenticate(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !a.anonymousReads {
			writeJSONError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
