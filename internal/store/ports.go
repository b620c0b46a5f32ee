// Package store declares the persistence ports used by the web layer.
// Implementations live in store/memory and storage (SQLite).
package store

import (
	"context"

	"penny/internal/core"
)

// Ports for outbound adapters. Lookups of missing records return
// core.ErrNotFound.
type (
	UserStore interface {
		// CreateUser assigns an ID and CreatedAt. A duplicate email returns core.ErrEmailTaken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id string) (core.User, error)
	}

	BudgetStore interface {
		// GetBudget returns ok=false when the user never saved a budget.
		GetBudget(ctx context.Context, userID string) (rec core.BudgetRecord, ok bool, err error)
		SaveBudget(ctx context.Context, userID string, rec core.BudgetRecord) (core.BudgetRecord, error)
	}

	GoalStore interface {
		// ListGoals returns goals oldest first, contributions in insertion order.
		ListGoals(ctx context.Context, userID string) ([]core.GoalRecord, error)
		GetGoal(ctx context.Context, userID, goalID string) (core.GoalRecord, error)
		CreateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error)
		// UpdateGoal rewrites name, target, months and analysis.
		UpdateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error)
		DeleteGoal(ctx context.Context, userID, goalID string) error
		AddContribution(ctx context.Context, userID, goalID string, c core.Contribution) (core.GoalRecord, error)
	}

	// Store is the full backend.
	Store interface {
		UserStore
		BudgetStore
		GoalStore
		Ping(ctx context.Context) error
		Close() error
	}
)
