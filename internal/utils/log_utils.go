// Package utils holds small helpers shared by the HTTP and CLI layers
package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxLogStringLength defines the maximum length for user-provided strings in logs
const MaxLogStringLength = 200

var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString makes a user-controlled string (session titles, backend
// error details, display names) safe to interpolate into a log line.
// Control characters become spaces, long values are truncated and % is escaped.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if len(input) > MaxLogStringLength {
		input = input[:MaxLogStringLength] + "... (truncated)"
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	sanitized = strings.ReplaceAll(sanitized, "%", "%%")

	return unprintable.ReplaceAllString(sanitized, "")
}

// MaskToken hides all but the last four characters of a bearer token
func MaskToken(token string) string {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
