package logger

import "strings"

// TokenPrefix returns a short, safe-to-log prefix of a session token.
// Full tokens must never appear in logs or audit entries.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return "[short-token]"
	}
	return token[:8] + "…"
}

// SanitizedIdentifier masks a profile identifier for operational logs:
// keeps the first character, masks the rest.
func SanitizedIdentifier(identifier string) string {
	if identifier == "" {
		return "[empty]"
	}
	if len(identifier) == 1 {
		return "*"
	}
	return string(identifier[0]) + strings.Repeat("*", len(identifier)-1)
}
