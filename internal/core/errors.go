package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks a user-entered value that could not be parsed or is out of range.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExternalService marks a text-generation call that could not complete.
	ErrExternalService = errors.New("external service failure")

	// ErrMalformedReply marks a generated reply with no usable JSON object.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrMalformedGoal is returned when a stored goal has a non-positive target.
	ErrMalformedGoal = fmt.Errorf("%w: goal target must be positive", ErrInvalidInput)

	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("an account with this email already exists")
	ErrNegative     = errors.New("must not be negative")
	ErrNotPositive  = errors.New("must be greater than zero")
	ErrNotANumber   = errors.New("not a number")
	ErrEmptyName    = errors.New("name cannot be empty")
	ErrNameTooLong  = errors.New("name too long (max 120 characters)")
	ErrTooLong      = errors.New("text too long")
	ErrPasswordRule = errors.New("password must be at least 8 characters and contain a special character")
	ErrPasswordDiff = errors.New("password mismatch")
	ErrInvalidEmail = errors.New("invalid email address")
)

// FieldError reports which form field failed and why. It always unwraps to
// ErrInvalidInput so callers can test with errors.Is.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrInvalidInput, e.Err}
}

// ValidationErrors collects every bad field of a submitted form.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	if len(v) == 1 {
		return v[0].Error()
	}
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("%d invalid fields: %s", len(v), strings.Join(parts, "; "))
}

func (v ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// Field returns the error for the named field, or nil.
func (v ValidationErrors) Field(name string) *FieldError {
	for _, fe := range v {
		if fe.Field == name {
			return fe
		}
	}
	return nil
}

// AsValidationErrors normalises err into ValidationErrors when it carries
// field-level detail.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return ValidationErrors{fe}, true
	}
	return nil, false
}
