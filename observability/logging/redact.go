package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// Keys the market daemon logs verbatim. Anything else passed through
// MaskField is replaced by RedactedValue.
var plainKeys = map[string]struct{}{
	"service": {}, "env": {}, "message": {}, "severity": {}, "timestamp": {},
	"error": {}, "reason": {}, "component": {}, "module": {},
	"operation": {}, "height": {}, "account": {}, "asset": {}, "amount": {},
	"code": {}, "info": {},
	"request_id": {}, "route": {}, "method": {}, "status": {}, "client": {},
}

// IsAllowlisted reports whether key is logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue hides non-empty values. Blank values pass through.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute that is redacted unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// TokenHint keeps the last four characters of a credential so operators can
// tell which token was presented without the log revealing it. Short tokens
// are fully masked.
func TokenHint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return RedactedValue
	}
	return "..." + token[len(token)-4:]
}
