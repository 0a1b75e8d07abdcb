package instrumentation

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY WARNING: Never put actual credential values (access tokens,
// refresh tokens, master keys, plaintext) in traces or metrics. Only
// record metadata such as field names, outcomes, and hashed identifiers.
const (
	// Rate limiting attributes
	AttrRateLimited    = "ratelimit.limited"
	AttrRateLimit      = "ratelimit.limit"
	AttrRateRemaining  = "ratelimit.remaining"
	AttrIdentifierHash = "ratelimit.identifier_hash"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageBackend   = "storage.backend"

	// Cipher attributes
	AttrCipherOperation  = "cipher.operation"
	AttrCredentialField  = "credential.field"
	AttrCredentialUserID = "credential.user_id"
)

// Storage result values for AttrStorageResult
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNotFound = "not_found"
)

// RecordSpanError marks a span as failed and records the error.
// Safe to call with a nil error (no-op).
func RecordSpanError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
