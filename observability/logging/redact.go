package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential values in log output.
const RedactedValue = "[REDACTED]"

// credentialMarkers flag attribute keys whose values are never logged: the
// JWT signing secret, bearer tokens and private keys.
var credentialMarkers = []string{"secret", "token", "authorization", "privkey", "privatekey", "password"}

// IsCredential reports whether key names a credential.
func IsCredential(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, marker := range credentialMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskField logs whether a credential is configured without its value.
// Non-credential keys pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsCredential(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is applied by the handler to every attribute, so credentials
// passed by mistake are masked too.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindString && IsCredential(attr.Key) {
		return MaskField(attr.Key, attr.Value.String())
	}
	return attr
}
