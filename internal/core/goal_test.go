package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGoalMonthlyRequirement(t *testing.T) {
	g := GoalRecord{Name: "Laptop", TargetAmount: decimal.NewFromInt(1200), Months: 6}
	got, err := GoalMonthlyRequirement(g)
	if err != nil || !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected 200, got %s (err=%v)", got, err)
	}

	for _, months := range []int{0, -3} {
		g.Months = months
		if _, err := GoalMonthlyRequirement(g); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("months=%d expected ErrInvalidInput, got %v", months, err)
		}
	}
}

func TestGoalProgress(t *testing.T) {
	g := GoalRecord{
		TargetAmount: decimal.NewFromInt(200),
		SavingsHistory: []Contribution{
			{Amount: decimal.NewFromInt(50)},
			{Amount: decimal.NewFromInt(75)},
		},
	}
	p, err := GoalProgress(g)
	if err != nil || !p.Equal(decimal.RequireFromString("0.625")) {
		t.Fatalf("expected 0.625, got %s (err=%v)", p, err)
	}

	g.SavingsHistory = append(g.SavingsHistory, Contribution{Amount: decimal.NewFromInt(500)})
	p, err = GoalProgress(g)
	if err != nil || !p.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected clamp to 1, got %s (err=%v)", p, err)
	}

	empty := GoalRecord{TargetAmount: decimal.NewFromInt(10)}
	if p, _ := GoalProgress(empty); !p.IsZero() {
		t.Fatalf("expected zero progress, got %s", p)
	}

	bad := GoalRecord{TargetAmount: decimal.Zero}
	if _, err := GoalProgress(bad); !errors.Is(err, ErrMalformedGoal) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected malformed goal error, got %v", err)
	}
}

func TestAddContribution(t *testing.T) {
	g := GoalRecord{TargetAmount: decimal.NewFromInt(100)}
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := g.AddContribution(day, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddContribution(day.AddDate(0, 0, 1), decimal.NewFromInt(15)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if err := g.AddContribution(day, bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("amount %s expected ErrInvalidInput, got %v", bad, err)
		}
	}
	if len(g.SavingsHistory) != 2 || !g.SavingsHistory[0].Date.Equal(day) {
		t.Fatalf("history should keep insertion order, got %+v", g.SavingsHistory)
	}
	if !g.Saved().Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25 saved, got %s", g.Saved())
	}
}

func TestAssessGoal(t *testing.T) {
	g := GoalRecord{Name: "Trip", TargetAmount: decimal.NewFromInt(1200), Months: 6}

	a, err := AssessGoal(g, budget(1500, 1000, 0, 0, 0, 0))
	if err != nil || !a.Achievable || !a.HasCapacity {
		t.Fatalf("expected achievable, got %+v (err=%v)", a, err)
	}

	a, err = AssessGoal(g, budget(1100, 1000, 0, 0, 0, 0))
	if err != nil || a.Achievable || !a.Shortfall.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected shortfall of 100, got %+v (err=%v)", a, err)
	}

	a, err = AssessGoal(g, BudgetRecord{Income: AmountFromFloat(5000)})
	if err != nil || a.HasCapacity || a.Achievable {
		t.Fatalf("without capacity the goal cannot be judged achievable, got %+v", a)
	}
}

func TestParseGoalForm(t *testing.T) {
	g, err := ParseGoalForm(GoalForm{Name: " New Laptop ", Amount: "1200 XCD", Months: "6"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name != "New Laptop" || g.Months != 6 || !g.TargetAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected goal %+v", g)
	}

	cases := []struct {
		form  GoalForm
		field string
	}{
		{GoalForm{Name: "", Amount: "10", Months: "1"}, FieldGoalName},
		{GoalForm{Name: "x", Amount: "0", Months: "1"}, FieldGoalAmount},
		{GoalForm{Name: "x", Amount: "10", Months: "0"}, FieldGoalMonths},
		{GoalForm{Name: "x", Amount: "10", Months: ""}, FieldGoalMonths},
		{GoalForm{Name: "x", Amount: "10", Months: "six"}, FieldGoalMonths},
	}
	for i, tc := range cases {
		_, err := ParseGoalForm(tc.form)
		ve, ok := AsValidationErrors(err)
		if !ok || ve.Field(tc.field) == nil {
			t.Fatalf("case %d expected error on %s, got %v", i, tc.field, err)
		}
	}
}

func TestGoalValidate(t *testing.T) {
	good := GoalRecord{Name: "Bike", TargetAmount: decimal.NewFromInt(300), Months: 3}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := GoalRecord{Name: " ", TargetAmount: decimal.NewFromInt(-1), Months: 0}
	ve, ok := AsValidationErrors(bad.Validate())
	if !ok || len(ve) != 3 {
		t.Fatalf("expected three errors, got %v", ve)
	}
}
