package security

import (
	"net/http"
	"strconv"
)

// SetRateLimitHeaders writes the standard rate-limit response headers
// derived from a limiter result.
func SetRateLimitHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
	if res.Limited {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
	}
}

// SetSecurityHeaders sets defensive headers on rate-limit error responses.
// These responses are API surfaces, never pages, so the policy is strict.
func SetSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
}
