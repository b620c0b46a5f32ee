package genai

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by Unconfigured and by a Client without an API key.
	ErrNotConfigured = errors.New("text generation not configured")

	ErrUnauthorized  = errors.New("text generation unauthorized")
	ErrRateLimited   = errors.New("text generation rate limited")
	ErrTimeout       = errors.New("text generation timeout")
	ErrServerError   = errors.New("text generation server error")
	ErrBadRequest    = errors.New("text generation bad request")
	ErrEmptyResponse = errors.New("text generation returned no text")
	ErrBlocked       = errors.New("prompt blocked by safety filter")
)

// APIError is a non-200 answer from the generative language API.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches either the wrapped sentinel or another APIError with the same code.
func (e *APIError) Is(target error) bool {
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable reports whether a later attempt could succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServerError)
}
