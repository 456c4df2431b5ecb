// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int, returning the default when the
// string is empty or not a valid integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseInt64 converts a string to an int64, reporting whether it parsed.
func ParseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// ClampLimit bounds a requested page size to [1, max], substituting the
// default for zero or negative requests.
func ClampLimit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}
