// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
	"penny/internal/store"
)

// Run exercises s against the port contracts. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("budgets", func(t *testing.T) { testBudgets(t, newStore(t)) })
	t.Run("goals", func(t *testing.T) { testGoals(t, newStore(t)) })
	t.Run("contributions", func(t *testing.T) { testContributions(t, newStore(t)) })
	t.Run("isolation", func(t *testing.T) { testIsolation(t, newStore(t)) })
}

func mustUser(t *testing.T, s store.Store, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{FirstName: "Alex", LastName: "Doe", Email: email})
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	u := mustUser(t, s, "Alex@Example.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alex@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	_, err := s.CreateUser(ctx, core.User{FirstName: "B", LastName: "C", Email: "alex@example.com"})
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	got, err := s.UserByEmail(ctx, " ALEX@example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Alex", got.FirstName)

	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testBudgets(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "budget@example.com")

	_, ok, err := s.GetBudget(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	rec := core.BudgetRecord{
		Income:    core.Some(decimal.RequireFromString("1500.50")),
		Rent:      core.Some(decimal.RequireFromString("500")),
		Food:      core.Some(decimal.Zero),
		ExtraInfo: "student",
	}
	saved, err := s.SaveBudget(ctx, u.ID, rec)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, ok, err := s.GetBudget(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Income.OrZero().Equal(decimal.RequireFromString("1500.5")))
	assert.True(t, got.Food.Present(), "entered zero must stay present")
	assert.False(t, got.Transport.Present(), "absent field must stay absent")
	assert.False(t, got.MonthlyBudget.Present())
	assert.Equal(t, "student", got.ExtraInfo)
	assert.True(t, core.TotalExpenses(got).Equal(decimal.NewFromInt(500)))

	rec.Transport = core.Some(decimal.NewFromInt(40))
	_, err = s.SaveBudget(ctx, u.ID, rec)
	require.NoError(t, err)
	got, _, err = s.GetBudget(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Transport.OrZero().Equal(decimal.NewFromInt(40)))
}

func testGoals(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "goals@example.com")

	first, err := s.CreateGoal(ctx, core.GoalRecord{UserID: u.ID, Name: "Laptop", TargetAmount: decimal.NewFromInt(1200), Months: 6})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	second, err := s.CreateGoal(ctx, core.GoalRecord{UserID: u.ID, Name: "Trip", TargetAmount: decimal.NewFromInt(800), Months: 4})
	require.NoError(t, err)

	_, err = s.CreateGoal(ctx, core.GoalRecord{UserID: u.ID, Name: "Bad", TargetAmount: decimal.NewFromInt(10), Months: 0})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	list, err := s.ListGoals(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	first.Name = "Gaming Laptop"
	first.TargetAmount = decimal.NewFromInt(1500)
	first.Months = 10
	first.Analysis = "Looks doable."
	updated, err := s.UpdateGoal(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Gaming Laptop", updated.Name)

	got, err := s.GetGoal(ctx, u.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Months)
	assert.True(t, got.TargetAmount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "Looks doable.", got.Analysis)

	require.NoError(t, s.DeleteGoal(ctx, u.ID, first.ID))
	_, err = s.GetGoal(ctx, u.ID, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteGoal(ctx, u.ID, first.ID), core.ErrNotFound)

	ghost := second
	ghost.ID = "missing"
	_, err = s.UpdateGoal(ctx, ghost)
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err = s.ListGoals(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Trip", list[0].Name)
}

func testContributions(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "save@example.com")
	g, err := s.CreateGoal(ctx, core.GoalRecord{UserID: u.ID, Name: "Bike", TargetAmount: decimal.NewFromInt(200), Months: 2})
	require.NoError(t, err)

	d1 := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err = s.AddContribution(ctx, u.ID, g.ID, core.Contribution{Date: d1, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	got, err := s.AddContribution(ctx, u.ID, g.ID, core.Contribution{Date: d2, Amount: decimal.NewFromInt(75)})
	require.NoError(t, err)
	require.Len(t, got.SavingsHistory, 2)

	_, err = s.AddContribution(ctx, u.ID, g.ID, core.Contribution{Date: d1, Amount: decimal.Zero})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = s.AddContribution(ctx, u.ID, "missing", core.Contribution{Date: d1, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err = s.GetGoal(ctx, u.ID, g.ID)
	require.NoError(t, err)
	require.Len(t, got.SavingsHistory, 2)
	// insertion order, not date order
	assert.True(t, got.SavingsHistory[0].Date.Equal(d1))
	assert.True(t, got.SavingsHistory[1].Date.Equal(d2))

	p, err := core.GoalProgress(got)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("0.625")))
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustUser(t, s, "a@example.com")
	b := mustUser(t, s, "b@example.com")

	g, err := s.CreateGoal(ctx, core.GoalRecord{UserID: a.ID, Name: "Mine", TargetAmount: decimal.NewFromInt(10), Months: 1})
	require.NoError(t, err)

	_, err = s.GetGoal(ctx, b.ID, g.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteGoal(ctx, b.ID, g.ID), core.ErrNotFound)

	list, err := s.ListGoals(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.SaveBudget(ctx, a.ID, core.BudgetRecord{Income: core.AmountFromFloat(10)})
	require.NoError(t, err)
	_, ok, err := s.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
