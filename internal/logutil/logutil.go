package logutil

import (
	"strings"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "masterkey"):
		return true
	case strings.Contains(normalized, "accesskey"):
		return true
	default:
		return false
	}
}

// RedactValue masks a value when its key looks sensitive. Unset secrets render
// as "<unset>" so a missing key is still visible in the startup summary.
func RedactValue(key, value string) string {
	if !IsSensitiveLogField(key) {
		return value
	}
	if value == "" {
		return "<unset>"
	}
	return "[REDACTED]"
}

// TruncateForLog returns a single-line truncated preview for unstructured values
// such as prompts and completions.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
