package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Budget form field names, shared by the HTTP layer and storage.
const (
	FieldIncome           = "income"
	FieldMonthlyBudget    = "monthly_budget"
	FieldRent             = "rent"
	FieldFood             = "food"
	FieldTransport        = "transport"
	FieldOtherLiabilities = "other_liabilities"
	FieldExtraInfo        = "extra_info"
)

// MaxExtraInfoLength bounds the free-text field.
const MaxExtraInfoLength = 2000

// BudgetRecord is a user's self-reported monthly income/expense snapshot.
type BudgetRecord struct {
	Income           Amount
	MonthlyBudget    Amount
	Rent             Amount
	Food             Amount
	Transport        Amount
	OtherLiabilities Amount
	ExtraInfo        string
	UpdatedAt        time.Time
}

// IsEmpty reports whether nothing at all has been entered.
func (r BudgetRecord) IsEmpty() bool {
	return !r.Income.Present() && !r.MonthlyBudget.Present() && !r.Rent.Present() &&
		!r.Food.Present() && !r.Transport.Present() && !r.OtherLiabilities.Present() &&
		strings.TrimSpace(r.ExtraInfo) == ""
}

// TotalExpenses sums rent, food, transport and other liabilities. Absent
// fields count as zero.
func TotalExpenses(r BudgetRecord) decimal.Decimal {
	return decimal.Sum(
		r.Rent.OrZero(),
		r.Food.OrZero(),
		r.Transport.OrZero(),
		r.OtherLiabilities.OrZero(),
	)
}

// RemainingBalance is income minus total expenses. A negative result means
// the user is over budget.
func RemainingBalance(r BudgetRecord) decimal.Decimal {
	return r.Income.OrZero().Sub(TotalExpenses(r))
}

// OverBudget reports whether expenses exceed income.
func OverBudget(r BudgetRecord) bool {
	return RemainingBalance(r).IsNegative()
}

// MonthlySavingCapacity is income minus the overall monthly budget. It is
// undefined (ok=false) when either side was never entered.
func MonthlySavingCapacity(r BudgetRecord) (capacity decimal.Decimal, ok bool) {
	income, hasIncome := r.Income.Value()
	budget, hasBudget := r.MonthlyBudget.Value()
	if !hasIncome || !hasBudget {
		return decimal.Zero, false
	}
	return income.Sub(budget), true
}

// CategoryAmount is one slice of the monthly breakdown.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Breakdown returns the per-category view used by the graphs page. A
// "Remaining Balance" slice is added only when income exceeds expenses.
func Breakdown(r BudgetRecord) []CategoryAmount {
	out := []CategoryAmount{
		{Name: "Rent", Amount: r.Rent.OrZero()},
		{Name: "Food", Amount: r.Food.OrZero()},
		{Name: "Transport", Amount: r.Transport.OrZero()},
		{Name: "Liabilities", Amount: r.OtherLiabilities.OrZero()},
	}
	if income := r.Income.OrZero(); income.GreaterThan(TotalExpenses(r)) {
		out = append(out, CategoryAmount{Name: "Remaining Balance", Amount: RemainingBalance(r)})
	}
	return out
}

// BudgetSummary bundles the derived numbers shown next to the budget form.
type BudgetSummary struct {
	TotalExpenses    decimal.Decimal
	RemainingBalance decimal.Decimal
	OverBudget       bool
	SavingCapacity   decimal.Decimal
	HasCapacity      bool
}

// Summarize computes every derived value of r.
func Summarize(r BudgetRecord) BudgetSummary {
	capacity, ok := MonthlySavingCapacity(r)
	return BudgetSummary{
		TotalExpenses:    TotalExpenses(r),
		RemainingBalance: RemainingBalance(r),
		OverBudget:       OverBudget(r),
		SavingCapacity:   capacity,
		HasCapacity:      ok,
	}
}

// BudgetForm is the raw text of a submitted budget form.
type BudgetForm struct {
	Income           string
	MonthlyBudget    string
	Rent             string
	Food             string
	Transport        string
	OtherLiabilities string
	ExtraInfo        string
}

// ParseBudgetForm converts raw form text into a BudgetRecord. Every invalid
// field is reported, not only the first one.
func ParseBudgetForm(f BudgetForm) (BudgetRecord, error) {
	var (
		rec  BudgetRecord
		errs ValidationErrors
	)
	parse := func(field, raw string, dst *Amount) {
		a, err := ParseAmount(field, raw)
		if err != nil {
			if fe, ok := err.(*FieldError); ok {
				errs = append(errs, fe)
			}
			return
		}
		*dst = a
	}
	parse(FieldIncome, f.Income, &rec.Income)
	parse(FieldMonthlyBudget, f.MonthlyBudget, &rec.MonthlyBudget)
	parse(FieldRent, f.Rent, &rec.Rent)
	parse(FieldFood, f.Food, &rec.Food)
	parse(FieldTransport, f.Transport, &rec.Transport)
	parse(FieldOtherLiabilities, f.OtherLiabilities, &rec.OtherLiabilities)

	rec.ExtraInfo = strings.TrimSpace(f.ExtraInfo)
	if len(rec.ExtraInfo) > MaxExtraInfoLength {
		errs = append(errs, &FieldError{Field: FieldExtraInfo, Err: ErrTooLong})
	}
	if len(errs) > 0 {
		return BudgetRecord{}, errs
	}
	return rec, nil
}

// Form renders the record back into editable text.
func (r BudgetRecord) Form() BudgetForm {
	return BudgetForm{
		Income:           r.Income.String(),
		MonthlyBudget:    r.MonthlyBudget.String(),
		Rent:             r.Rent.String(),
		Food:             r.Food.String(),
		Transport:        r.Transport.String(),
		OtherLiabilities: r.OtherLiabilities.String(),
		ExtraInfo:        r.ExtraInfo,
	}
}
