package logger

import "strings"

// SanitizeQueryString checks if a query string contains sensitive
// parameters and returns true if the whole string should be redacted
// from request logs.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"pin",
		"password",
		"token",
		"secret",
		"auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
