package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP statuses at the API edge.
var (
	ErrInvalidVendor       = errors.New("invalid vendor")
	ErrVendorDisabled      = errors.New("vendor disabled")
	ErrSchemaInvalid       = errors.New("payload schema invalid")
	ErrNotFound            = errors.New("not found")
	ErrNotConnected        = errors.New("broker not connected")
	ErrResourceUnavailable = errors.New("resources unavailable")
	ErrUnauthorized        = errors.New("unauthorized")
)

// ErrorType classifies a failure for the multi-tier retry strategy.
type ErrorType string

const (
	// ErrorTransient may succeed on an immediate in-place retry
	// (network blips, stale element references).
	ErrorTransient ErrorType = "TRANSIENT"
	// ErrorRetriable needs a backoff delay before the next attempt
	// (rate limits, resource exhaustion, captcha timeouts).
	ErrorRetriable ErrorType = "RETRIABLE"
	// ErrorPermanent will never succeed; the job goes straight to the
	// DLQ (invalid credentials, unimplemented bots, bad payloads).
	ErrorPermanent ErrorType = "PERMANENT"
)

// TypedError is the tagged-variant failure type produced by handlers
// and adapters. It carries its classification explicitly so the
// classifier never has to guess.
type TypedError struct {
	Kind    ErrorType
	Code    string
	Message string
	Wrapped error
}

func (e *TypedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *TypedError) Unwrap() error { return e.Wrapped }

// Transient builds a TRANSIENT TypedError.
func Transient(code, message string) *TypedError {
	return &TypedError{Kind: ErrorTransient, Code: code, Message: message}
}

// Retriable builds a RETRIABLE TypedError.
func Retriable(code, message string) *TypedError {
	return &TypedError{Kind: ErrorRetriable, Code: code, Message: message}
}

// Permanent builds a PERMANENT TypedError.
func Permanent(code, message string) *TypedError {
	return &TypedError{Kind: ErrorPermanent, Code: code, Message: message}
}

// Common handler failures with well-known codes.

// NewRateLimitError reports an upstream rate limit; needs cooldown.
func NewRateLimitError(message string) *TypedError {
	return Retriable("RATE_LIMIT", message)
}

// NewResourceExhaustedError reports exhausted CPU/RAM/slots.
func NewResourceExhaustedError(message string) *TypedError {
	return &TypedError{Kind: ErrorRetriable, Code: "RESOURCE_EXHAUSTED", Message: message, Wrapped: ErrResourceUnavailable}
}

// NewAuthenticationError reports a vendor portal login failure.
func NewAuthenticationError(message string) *TypedError {
	return Permanent("AUTH_001", message)
}

// NewInvalidCredentialsError reports expired or wrong credentials.
func NewInvalidCredentialsError(message string) *TypedError {
	return Permanent("INVALID_CREDENTIALS", message)
}

// NewBotNotImplementedError reports a vendor with no handler.
func NewBotNotImplementedError(vendor Vendor) *TypedError {
	return Permanent("BOT_NOT_IMPLEMENTED", fmt.Sprintf("no handler implemented for vendor %s", vendor))
}

// NewValidationError reports a structurally invalid payload.
func NewValidationError(message string) *TypedError {
	return Permanent("VALIDATION", message)
}
