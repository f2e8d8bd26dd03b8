package debrid

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken        = errors.New("invalid or expired provider credential")
	ErrInvalidReference    = errors.New("invalid source reference")
	ErrQuotaExceeded       = errors.New("provider quota exceeded")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNotFound            = errors.New("cache reference not found")
	ErrNotReady            = errors.New("cache not ready")
	ErrNoPlayableFile      = errors.New("no playable file in cache")
	ErrUnknownProvider     = errors.New("unknown provider")
)

// APIError carries the provider's own error details and unwraps to one of
// the sentinel errors above
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Err)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" [HTTP %d]", e.StatusCode)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether retrying the same call cannot succeed
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrNoPlayableFile) ||
		errors.Is(err, ErrUnknownProvider)
}

func isInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func newAPIError(provider string, status int, code, message string, err error) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// errorForStatus maps an HTTP status to a sentinel error
func errorForStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrInvalidToken
	case status == 402:
		return ErrQuotaExceeded
	case status == 404:
		return ErrNotFound
	case status == 429 || status >= 500:
		return ErrProviderUnavailable
	default:
		return ErrInvalidReference
	}
}
