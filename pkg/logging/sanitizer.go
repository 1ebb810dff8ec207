package logging

import (
	"fmt"
	"regexp"
)

const (
	// MaxPayloadLogLength is the number of leading characters kept when logging
	// an inline payload such as base64 image data.
	MaxPayloadLogLength = 32
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches user:pass@host in URL-form connection strings
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Matches the body of a data URL, e.g. data:image/png;base64,iVBOR...
	dataURLPattern = regexp.MustCompile(`(data:[\w/+.-]+;base64,)[A-Za-z0-9+/=\s]+`)
)

// SanitizeConnectionString removes credentials from connection strings.
// Use this before logging any DSN.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might carry credentials or inline payloads.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = dataURLPattern.ReplaceAllString(sanitized, "${1}"+RedactedText)

	return sanitized
}

// SummarizePayload replaces a large inline payload with its prefix and length,
// so request logs never carry whole images.
func SummarizePayload(s string) string {
	if len(s) <= MaxPayloadLogLength {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:MaxPayloadLogLength], len(s))
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
