package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"penny/internal/sheets"
)

// Exporter keeps exported rows in memory. The worker uses it when no
// spreadsheet is configured.
type Exporter struct {
	mu      sync.Mutex
	budgets map[string]sheets.BudgetRow
	goals   map[string]sheets.GoalRow
	writes  int
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{
		budgets: make(map[string]sheets.BudgetRow),
		goals:   make(map[string]sheets.GoalRow),
	}
}

// UpsertBudget stores the row and returns a synthetic row reference.
func (e *Exporter) UpsertBudget(_ context.Context, row sheets.BudgetRow) (string, error) {
	if row.UserID == "" {
		return "", errors.New("budget row without user id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budgets[row.UserID] = row
	e.writes++
	return fmt.Sprintf("mem:budget:%s", row.UserID), nil
}

func (e *Exporter) UpsertGoal(_ context.Context, row sheets.GoalRow) (string, error) {
	if row.GoalID == "" {
		return "", errors.New("goal row without goal id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.goals[row.GoalID] = row
	e.writes++
	return fmt.Sprintf("mem:goal:%s", row.GoalID), nil
}

func (e *Exporter) DeleteGoal(_ context.Context, goalID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.goals, goalID)
	return nil
}

// Budget returns the exported budget row for a user.
func (e *Exporter) Budget(userID string) (sheets.BudgetRow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.budgets[userID]
	return row, ok
}

// Goals returns the exported goal rows ordered by goal id.
func (e *Exporter) Goals() []sheets.GoalRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sheets.GoalRow, 0, len(e.goals))
	for _, g := range e.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoalID < out[j].GoalID })
	return out
}

// Writes counts successful upserts.
func (e *Exporter) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}
