package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder substituted for sensitive
// fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are log keys whose string values are always masked:
// connection strings, credentials, and bearer material that operators wire
// through env vars (AICF_POSTGRES_DSN, JWT secrets, OTLP headers).
var sensitiveKeys = map[string]struct{}{
	"dsn":           {},
	"secret":        {},
	"token":         {},
	"authorization": {},
	"api_key":       {},
	"bearer":        {},
	"password":      {},
	"jwt":           {},
	"otlp_headers":  {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[normalized]; ok {
		return true
	}
	// Suffix match catches composed keys like db_dsn or admin_token.
	for suffix := range sensitiveKeys {
		if strings.HasSuffix(normalized, "_"+suffix) {
			return true
		}
	}
	return false
}

// SensitiveKeys returns a sorted copy of the masked key set. Tests use this
// to ensure credential-bearing keys stay covered.
func SensitiveKeys() []string {
	keys := make([]string, 0, len(sensitiveKeys))
	for key := range sensitiveKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the redacted placeholder for non-empty values. Empty
// values are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr with the value masked when the key is
// sensitive, and unchanged otherwise.
func MaskField(key, value string) slog.Attr {
	if value == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
