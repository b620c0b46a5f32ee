package sheets

import (
	"context"
	"time"
)

// BudgetRow is one user's budget as written to the export sheet.
// Amount fields are pre-formatted; empty means not entered.
type BudgetRow struct {
	UserID           string
	Email            string
	Income           string
	MonthlyBudget    string
	Rent             string
	Food             string
	Transport        string
	OtherLiabilities string
	ExtraInfo        string
	TotalExpenses    string
	RemainingBalance string
	UpdatedAt        time.Time
}

// GoalRow is one savings goal as written to the export sheet.
type GoalRow struct {
	GoalID        string
	UserID        string
	Email         string
	Name          string
	TargetAmount  string
	Months        int
	MonthlyNeeded string
	Saved         string
	Progress      string
	UpdatedAt     time.Time
}

// Ports for outbound adapters.
type (
	// BudgetExporter keeps one row per user.
	BudgetExporter interface {
		UpsertBudget(ctx context.Context, row BudgetRow) (rowRef string, err error)
	}

	// GoalExporter keeps one row per goal.
	GoalExporter interface {
		UpsertGoal(ctx context.Context, row GoalRow) (rowRef string, err error)
		// DeleteGoal removes the goal's row; a goal that was never exported is not an error.
		DeleteGoal(ctx context.Context, goalID string) error
	}

	Exporter interface {
		BudgetExporter
		GoalExporter
	}
)
