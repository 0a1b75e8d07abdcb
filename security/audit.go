package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Identifiers
// are hashed before logging; token values and key material never appear in
// events at all.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type       string
	Identifier string
	IPAddress  string
	Details    map[string]any
	Timestamp  time.Time
}

// LogEvent logs a security event with hashed identifiers.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"identifier_hash", hashForLogging(event.Identifier),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogRateLimitExceeded logs a blocked request.
func (a *Auditor) LogRateLimitExceeded(identifier, ipAddress string, limit int, retryAfterSeconds int) {
	a.LogEvent(Event{
		Type:       "rate_limit_exceeded",
		Identifier: identifier,
		IPAddress:  ipAddress,
		Details: map[string]any{
			"limit":       limit,
			"retry_after": retryAfterSeconds,
		},
	})
}

// LogDecryptFailure logs a credential field that failed to decrypt and was
// nulled on read. The field name is logged; the value never is.
func (a *Auditor) LogDecryptFailure(identifier, field string) {
	a.LogEvent(Event{
		Type:       "credential_decrypt_failed",
		Identifier: identifier,
		Details: map[string]any{
			"field": field,
		},
	})
}

// LogKeyRotation logs a master key rotation pass.
func (a *Auditor) LogKeyRotation(rotated, failed int) {
	a.LogEvent(Event{
		Type: "key_rotation",
		Details: map[string]any{
			"rotated": rotated,
			"failed":  failed,
		},
	})
}

// LogStorageFailure logs a counter-store failure and the policy decision it
// was converted into.
func (a *Auditor) LogStorageFailure(identifier string, policy FailurePolicy) {
	a.LogEvent(Event{
		Type:       "rate_limit_storage_failure",
		Identifier: identifier,
		Details: map[string]any{
			"policy": policy.String(),
		},
	})
}

// hashForLogging returns a short SHA-256 prefix of a value for correlation
// in logs without exposing the value itself.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
