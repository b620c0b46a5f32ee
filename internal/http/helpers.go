package http

import (
	"strings"

	"github.com/shopspring/decimal"

	"penny/internal/core"
)

func formatMoney(d decimal.Decimal) string { return core.FormatMoney(d) }

// formatAmount is formatMoney for optional amounts.
func formatAmount(a core.Amount) string {
	v, ok := a.Value()
	if !ok {
		return "not provided"
	}
	return formatMoney(v)
}

// percent turns a [0,1] fraction into a whole percentage for bar widths.
func percent(fraction decimal.Decimal) int {
	p := fraction.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// barWidths scales amounts against the largest one. Non-zero values get at
// least 2% so they stay visible.
func barWidths(amounts []decimal.Decimal) []int {
	max := decimal.Zero
	for _, a := range amounts {
		if a.GreaterThan(max) {
			max = a
		}
	}
	out := make([]int, len(amounts))
	if !max.IsPositive() {
		return out
	}
	for i, a := range amounts {
		if !a.IsPositive() {
			continue
		}
		w := percent(a.Div(max))
		if w < 2 {
			w = 2
		}
		out[i] = w
	}
	return out
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// fieldMessages maps form field names to user-facing messages.
func fieldMessages(err error) map[string]string {
	ve, ok := core.AsValidationErrors(err)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe *core.FieldError) string {
	switch {
	case fe.Err == core.ErrNotANumber:
		return "Please enter a number, for example 1500 or 1500 XCD."
	case fe.Err == core.ErrNegative:
		return "Amounts cannot be negative."
	case fe.Err == core.ErrNotPositive:
		return "Please enter a value greater than zero."
	case fe.Err == core.ErrEmptyName:
		return "This field is required."
	case fe.Err == core.ErrPasswordRule:
		return "Use at least 8 characters including a special character."
	case fe.Err == core.ErrPasswordDiff:
		return "Passwords do not match."
	case fe.Err == core.ErrInvalidEmail:
		return "Please enter a valid email address."
	case fe.Err == core.ErrEmailTaken:
		return "An account with this email already exists."
	default:
		return fe.Err.Error()
	}
}
