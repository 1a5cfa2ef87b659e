package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrAuthInvalid          = errors.New("auth invalid")
	ErrUnauthenticated      = errors.New("not authenticated")
	ErrRateLimited          = errors.New("rate limited")
	ErrOrderSignature       = errors.New("order signature mismatch")
	ErrCredentialDerivation = errors.New("credential derivation failed")
	ErrCredentialPayload    = errors.New("credential payload invalid")
	ErrSignerUnavailable    = errors.New("signer unavailable")
	ErrNotFound             = errors.New("not found")
)

// UpstreamError carries the HTTP status and message of a failed call to the
// CLOB or another upstream API. StatusCode is clamped to [400, 599] so it can
// be passed straight through to the client.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream HTTP %d: %s", e.StatusCode, e.Message)
}

// NewUpstreamError builds an UpstreamError, clamping out-of-range status
// codes to the 400-599 window. Zero or negative codes become the fallback.
func NewUpstreamError(statusCode int, message string, fallback int) *UpstreamError {
	if statusCode <= 0 {
		statusCode = fallback
	}
	if statusCode < 400 {
		statusCode = 400
	}
	if statusCode > 599 {
		statusCode = 599
	}
	return &UpstreamError{StatusCode: statusCode, Message: message}
}
