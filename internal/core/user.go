package core

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
)

const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldPassword  = "password1"
	FieldConfirm   = "password2"
)

// User is an account holder. Passwords are validated at sign-up but never
// stored.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

// DisplayName is the first name, falling back to the email.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.FirstName); n != "" {
		return n
	}
	return u.Email
}

// SignupForm is the raw text of the sign-up form.
type SignupForm struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Confirm   string
}

// ParseSignupForm validates the sign-up form and returns the user to create.
func ParseSignupForm(f SignupForm) (User, error) {
	var errs ValidationErrors
	u := User{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Email:     NormalizeEmail(f.Email),
	}
	if u.FirstName == "" {
		errs = append(errs, &FieldError{Field: FieldFirstName, Err: ErrEmptyName})
	}
	if u.LastName == "" {
		errs = append(errs, &FieldError{Field: FieldLastName, Err: ErrEmptyName})
	}
	if err := validateEmail(u.Email); err != nil {
		errs = append(errs, &FieldError{Field: FieldEmail, Value: f.Email, Err: err})
	}
	if !passwordOK(f.Password) {
		errs = append(errs, &FieldError{Field: FieldPassword, Err: ErrPasswordRule})
	} else if f.Password != f.Confirm {
		errs = append(errs, &FieldError{Field: FieldConfirm, Err: ErrPasswordDiff})
	}
	if len(errs) > 0 {
		return User{}, errs
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ErrInvalidEmail
	}
	return nil
}

func passwordOK(p string) bool {
	if len([]rune(p)) < 8 {
		return false
	}
	for _, r := range p {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return true
		}
	}
	return false
}
