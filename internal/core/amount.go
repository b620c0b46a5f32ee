// Package core holds the budgeting arithmetic and the value records it
// operates on.
//
// Amounts use shopspring/decimal so that sums of user-entered figures are
// exact. An Amount carries its own presence bit: an empty form field is
// absent, which is different from an entered zero.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Amount is an optional non-negative money value.
type Amount struct {
	value   decimal.Decimal
	present bool
}

// Some returns a present Amount.
func Some(d decimal.Decimal) Amount {
	return Amount{value: d, present: true}
}

// None returns an absent Amount.
func None() Amount {
	return Amount{}
}

// AmountFromFloat is a convenience for tests and seed data.
func AmountFromFloat(f float64) Amount {
	return Some(decimal.NewFromFloat(f))
}

// Present reports whether a value was entered.
func (a Amount) Present() bool { return a.present }

// Value returns the decimal and whether it was present.
func (a Amount) Value() (decimal.Decimal, bool) {
	return a.value, a.present
}

// OrZero returns the value, or zero when absent.
func (a Amount) OrZero() decimal.Decimal {
	if !a.present {
		return decimal.Zero
	}
	return a.value
}

// NullDecimal converts to the storage representation.
func (a Amount) NullDecimal() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: a.value, Valid: a.present}
}

// AmountFromNull converts from the storage representation.
func AmountFromNull(n decimal.NullDecimal) Amount {
	if !n.Valid {
		return None()
	}
	return Some(n.Decimal)
}

// String renders the amount with two decimals, or "" when absent.
func (a Amount) String() string {
	if !a.present {
		return ""
	}
	return a.value.StringFixed(2)
}

// FormatMoney renders d with two decimals and thousands separators
// ("1,234.50"). Negative values keep their sign.
func FormatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// ParseAmount parses a user-entered money value.
//
// It accepts an optional currency code before or after the number
// ("1500 XCD", "XCD 1500", "$12.50"), comma thousands separators ("1,500",
// "1,500.00") and a decimal comma with one or two digits ("12,34"). An empty
// string yields an absent Amount and no error. Negative values and anything
// unparsable or ambiguous ("1.500,50", "12 34") return a *FieldError wrapping
// ErrInvalidInput.
func ParseAmount(field, s string) (Amount, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return None(), nil
	}
	s = stripCurrency(s)
	if strings.HasPrefix(s, "-") {
		return None(), &FieldError{Field: field, Value: raw, Err: ErrNegative}
	}
	s, ok := normalizeSeparators(strings.TrimPrefix(s, "+"))
	if !ok || s == "" || strings.Count(s, ".") > 1 {
		return None(), &FieldError{Field: field, Value: raw, Err: ErrNotANumber}
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return None(), &FieldError{Field: field, Value: raw, Err: ErrNotANumber}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return None(), &FieldError{Field: field, Value: raw, Err: ErrNotANumber}
	}
	return Some(d), nil
}

// ParsePositiveAmount is ParseAmount for fields that are required and must be > 0.
func ParsePositiveAmount(field, s string) (decimal.Decimal, error) {
	a, err := ParseAmount(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	v, ok := a.Value()
	if !ok || !v.IsPositive() {
		return decimal.Zero, &FieldError{Field: field, Value: s, Err: ErrNotPositive}
	}
	return v, nil
}

// normalizeSeparators removes thousands commas and turns a decimal comma
// into a dot. It fails on inner spaces and on commas that fit neither form.
func normalizeSeparators(s string) (string, bool) {
	if strings.ContainsFunc(s, unicode.IsSpace) {
		return "", false
	}
	if !strings.Contains(s, ",") {
		return s, true
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot {
		if strings.Contains(frac, ",") || !thousandsGrouped(whole) {
			return "", false
		}
		return strings.ReplaceAll(whole, ",", "") + "." + frac, true
	}
	if thousandsGrouped(s) {
		return strings.ReplaceAll(s, ",", ""), true
	}
	intPart, dec, _ := strings.Cut(s, ",")
	if intPart != "" && !strings.Contains(dec, ",") && len(dec) >= 1 && len(dec) <= 2 {
		return intPart + "." + dec, true
	}
	return "", false
}

// thousandsGrouped reports whether s is 1-3 leading digits followed by
// comma-separated groups of exactly three.
func thousandsGrouped(s string) bool {
	groups := strings.Split(s, ",")
	if n := len(groups[0]); n < 1 || n > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func stripCurrency(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.Is(unicode.Sc, r) || unicode.IsSpace(r)
	})
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.Is(unicode.Sc, r) || unicode.IsSpace(r)
	})
	return s
}
