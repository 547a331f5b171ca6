package audit

import (
	"fmt"
	"strings"
)

const masked = "***"

// SanitizeParams returns a copy of params with credential-like keys masked.
// Nested maps and slices are walked.
func SanitizeParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return masked
	}
	switch typed := value.(type) {
	case map[string]any:
		return SanitizeParams(typed)
	case []any:
		cp := make([]any, 0, len(typed))
		for i, item := range typed {
			cp = append(cp, sanitizeValue(fmt.Sprintf("[%d]", i), item))
		}
		return cp
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	return strings.Contains(k, "password") ||
		strings.Contains(k, "passwd") ||
		strings.Contains(k, "secret") ||
		strings.Contains(k, "token") ||
		strings.Contains(k, "api_key") ||
		strings.Contains(k, "apikey") ||
		strings.HasSuffix(k, "_hash")
}
