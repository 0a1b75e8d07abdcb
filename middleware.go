package credguard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hatchsec/credguard/security"
)

type userIDContextKey struct{}

// WithUserID attaches an authenticated user ID to the context. The
// rate-limit middleware prefers it over the client IP as the
// partitioning identifier.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the authenticated user ID, if any.
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey{}).(string); ok {
		return userID
	}
	return ""
}

// RateLimitMiddleware wraps an http.Handler with fixed-window rate
// limiting. The identifier is the authenticated user ID from the
// context when present, otherwise the client IP. Every response
// carries X-RateLimit-* headers; rejected requests get a 429 with a
// JSON error body and Retry-After.
func (g *Guard) RateLimitMiddleware(next http.Handler) http.Handler {
	limit := g.cfg.RateLimit.Limit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	window := g.cfg.RateLimit.Window
	if window <= 0 {
		window = DefaultRateWindow
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get(security.RequestIDHeader)
		if !security.ValidRequestID(requestID) {
			requestID = security.GenerateRequestID()
		}
		ctx = security.WithRequestID(ctx, requestID)
		rec.Header().Set(security.RequestIDHeader, requestID)

		clientIP := security.GetClientIP(r,
			g.cfg.RateLimit.TrustProxyHeaders,
			g.cfg.RateLimit.TrustedProxyCount)

		identifier := "ip:" + clientIP
		if userID := UserIDFromContext(ctx); userID != "" {
			identifier = "user:" + userID
		}

		result := g.limiter.Check(ctx, identifier, limit, window)
		g.instr.Metrics().RecordRateLimitCheck(ctx, result.Limited)
		security.SetRateLimitHeaders(rec, result)

		if result.Limited {
			g.auditor.LogRateLimitExceeded(identifier, clientIP, limit, result.RetryAfterSeconds())
			g.writeError(rec, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
		} else {
			next.ServeHTTP(rec, r.WithContext(ctx))
		}

		g.instr.Metrics().RecordHTTPRequest(ctx, r.Method, r.URL.Path,
			rec.status, float64(time.Since(start).Milliseconds()))
	})
}

// statusRecorder captures the response status so allowed and rejected
// requests alike land in the HTTP metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeError writes an Error as a JSON response with security headers.
func (g *Guard) writeError(w http.ResponseWriter, err *Error) {
	security.SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)

	resp := map[string]string{
		"error":             err.Code,
		"error_description": err.Description,
	}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		g.logger.Error("Failed to write error response", "error", encodeErr)
	}
}
