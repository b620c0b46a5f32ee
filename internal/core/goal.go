package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FieldGoalName   = "goal_name"
	FieldGoalAmount = "goal_amount"
	FieldGoalMonths = "time_span"
	FieldSaveAmount = "amount"
	FieldSaveDate   = "date"
)

// MaxGoalMonths caps the saving horizon at 50 years.
const MaxGoalMonths = 600

// Contribution is one deposit towards a goal.
type Contribution struct {
	Date   time.Time
	Amount decimal.Decimal
}

// GoalRecord is a named savings target with a deadline in months and the
// running history of contributions, oldest first.
type GoalRecord struct {
	ID             string
	UserID         string
	Name           string
	TargetAmount   decimal.Decimal
	Months         int
	SavingsHistory []Contribution
	Analysis       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the invariants a stored goal must satisfy.
func (g GoalRecord) Validate() error {
	var errs ValidationErrors
	name := strings.TrimSpace(g.Name)
	switch {
	case name == "":
		errs = append(errs, &FieldError{Field: FieldGoalName, Err: ErrEmptyName})
	case len(name) > 120:
		errs = append(errs, &FieldError{Field: FieldGoalName, Value: g.Name, Err: ErrNameTooLong})
	}
	if !g.TargetAmount.IsPositive() {
		errs = append(errs, &FieldError{Field: FieldGoalAmount, Value: g.TargetAmount.String(), Err: ErrNotPositive})
	}
	if g.Months < 1 || g.Months > MaxGoalMonths {
		errs = append(errs, &FieldError{Field: FieldGoalMonths, Value: strconv.Itoa(g.Months), Err: ErrNotPositive})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// GoalMonthlyRequirement is the amount to put aside each month to reach the
// target on time. Months of zero or less are rejected rather than coerced.
func GoalMonthlyRequirement(g GoalRecord) (decimal.Decimal, error) {
	if g.Months <= 0 {
		return decimal.Zero, &FieldError{Field: FieldGoalMonths, Value: strconv.Itoa(g.Months), Err: ErrNotPositive}
	}
	return g.TargetAmount.Div(decimal.NewFromInt(int64(g.Months))), nil
}

// Saved is the sum of all contributions.
func (g GoalRecord) Saved() decimal.Decimal {
	total := decimal.Zero
	for _, c := range g.SavingsHistory {
		total = total.Add(c.Amount)
	}
	return total
}

// GoalProgress is the saved fraction of the target, clamped to [0, 1].
func GoalProgress(g GoalRecord) (decimal.Decimal, error) {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero, ErrMalformedGoal
	}
	p := g.Saved().Div(g.TargetAmount)
	if p.IsNegative() {
		return decimal.Zero, nil
	}
	if one := decimal.NewFromInt(1); p.GreaterThan(one) {
		return one, nil
	}
	return p, nil
}

// AddContribution appends a deposit. Only positive amounts are accepted.
func (g *GoalRecord) AddContribution(date time.Time, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &FieldError{Field: FieldSaveAmount, Value: amount.String(), Err: ErrNotPositive}
	}
	g.SavingsHistory = append(g.SavingsHistory, Contribution{Date: date, Amount: amount})
	return nil
}

// Achievability compares what a goal needs each month with what the budget
// leaves over.
type Achievability struct {
	Required    decimal.Decimal
	Capacity    decimal.Decimal
	HasCapacity bool
	Achievable  bool
	Shortfall   decimal.Decimal
}

// AssessGoal evaluates g against the user's budget. Without a saving
// capacity the goal is never reported as achievable.
func AssessGoal(g GoalRecord, budget BudgetRecord) (Achievability, error) {
	required, err := GoalMonthlyRequirement(g)
	if err != nil {
		return Achievability{}, err
	}
	a := Achievability{Required: required}
	a.Capacity, a.HasCapacity = MonthlySavingCapacity(budget)
	if a.HasCapacity {
		a.Achievable = a.Capacity.GreaterThanOrEqual(required)
		if !a.Achievable {
			a.Shortfall = required.Sub(a.Capacity)
		}
	}
	return a, nil
}

// GoalForm is the raw text of a submitted goal form.
type GoalForm struct {
	Name   string
	Amount string
	Months string
}

// ParseMonths parses a positive whole number of months.
func ParseMonths(field, s string) (int, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &FieldError{Field: field, Value: raw, Err: ErrNotPositive}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &FieldError{Field: field, Value: raw, Err: ErrNotANumber}
	}
	if n <= 0 || n > MaxGoalMonths {
		return 0, &FieldError{Field: field, Value: raw, Err: ErrNotPositive}
	}
	return n, nil
}

// ParseGoalForm validates and converts a goal form. The returned record has
// no ID or owner yet.
func ParseGoalForm(f GoalForm) (GoalRecord, error) {
	var errs ValidationErrors
	g := GoalRecord{Name: strings.TrimSpace(f.Name)}

	amount, err := ParsePositiveAmount(FieldGoalAmount, f.Amount)
	if fe, ok := err.(*FieldError); ok {
		errs = append(errs, fe)
	}
	g.TargetAmount = amount

	months, err := ParseMonths(FieldGoalMonths, f.Months)
	if fe, ok := err.(*FieldError); ok {
		errs = append(errs, fe)
	}
	g.Months = months

	if g.Name == "" {
		errs = append(errs, &FieldError{Field: FieldGoalName, Err: ErrEmptyName})
	} else if len(g.Name) > 120 {
		errs = append(errs, &FieldError{Field: FieldGoalName, Value: f.Name, Err: ErrNameTooLong})
	}
	if len(errs) > 0 {
		return GoalRecord{}, errs
	}
	return g, nil
}
