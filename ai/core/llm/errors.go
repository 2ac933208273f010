package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindUnknown      ErrorKind = "unknown"
)

// ProviderError is returned by every Provider when a call fails.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ErrorKind
	// VendorStatus is the HTTP status reported by the vendor, 0 when none was received.
	VendorStatus int
	Err          error
}

func (e *ProviderError) Error() string {
	if e.VendorStatus != 0 {
		return fmt.Sprintf("%s/%s: %s (status %d): %v", e.Provider, e.Model, e.Kind, e.VendorStatus, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because its deadline expired.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// KindFromStatus maps a vendor HTTP status to an ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of err, or KindUnknown when err is not a ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func newProviderError(provider, model string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:     provider,
		Model:        model,
		Kind:         KindFromStatus(status),
		VendorStatus: status,
		Err:          err,
	}
}
