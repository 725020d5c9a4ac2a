// Package redact provides privacy filtering for sensitive data.
package redact

import (
	"regexp"
	"strings"
)

// DefaultFieldDenylist contains field names whose values are always redacted.
var DefaultFieldDenylist = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"accesstoken",
	"access_token",
	"private_key",
	"credential",
	"auth",
	"ssn",
	"credit_card",
	"card_number",
	"cvv",
	"pin",
}

// DefaultTextPatterns match sensitive substrings inside free text such as
// screen previews.
var DefaultTextPatterns = []*regexp.Regexp{
	// Email addresses.
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	// Card-like digit runs, optionally grouped by spaces or dashes.
	regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
	// Bearer tokens.
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
}

// matchFieldName checks if a field name matches a pattern (case-insensitive).
func matchFieldName(actual, pattern string) bool {
	actualLower := strings.ToLower(actual)
	patternLower := strings.ToLower(pattern)

	// Exact match.
	if actualLower == patternLower {
		return true
	}

	// Substring match catches "userPassword", "password_hash", etc.
	return strings.Contains(actualLower, patternLower)
}
