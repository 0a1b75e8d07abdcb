package credguard

import (
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrorCodeConfiguration     = "configuration_error"
	ErrorCodeCrypto            = "crypto_error"
	ErrorCodeStorage           = "storage_error"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeServerError       = "server_error"
)

// Error is an HTTP-facing error with a stable machine-readable code.
type Error struct {
	Code        string // Machine-readable error code (e.g., "rate_limit_exceeded")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new Error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common errors as reusable constructors
var (
	// ErrConfiguration indicates missing or malformed configuration.
	// Configuration errors are fatal at startup or first use.
	ErrConfiguration = func(desc string) *Error {
		return NewError(ErrorCodeConfiguration, desc, http.StatusInternalServerError)
	}

	// ErrCrypto indicates an encryption or decryption failure
	ErrCrypto = func(desc string) *Error {
		return NewError(ErrorCodeCrypto, desc, http.StatusInternalServerError)
	}

	// ErrStorage indicates a rate-limit storage backend failure
	ErrStorage = func(desc string) *Error {
		return NewError(ErrorCodeStorage, desc, http.StatusServiceUnavailable)
	}

	// ErrRateLimitExceeded indicates the caller has exhausted its quota
	ErrRateLimitExceeded = func(desc string) *Error {
		return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}

	// ErrServerError indicates an unexpected internal failure
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)
