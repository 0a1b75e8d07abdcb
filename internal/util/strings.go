// Package util provides small shared helpers used across the credguard
// library that don't belong to a domain-specific package.
package util

import "strings"

// SafeTruncate truncates a string to maxLen bytes without panicking.
// It is used when logging prefixes of sensitive values (key IDs, blobs)
// where only the leading characters may appear in logs.
//
// A negative maxLen is treated as 0 and returns an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL strips trailing slashes from a URL. The remote counter store
// joins its pipeline path onto the configured base URL, so
// "https://kv.example.com/" and "https://kv.example.com" must be equivalent.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
