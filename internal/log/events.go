package log

import "context"

// StructuredLogger writes the domain events the web layer reports: budget
// saves, goal changes and request failures. Inside a request it logs through
// the request's logger, which already carries the request and user ids.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// scoped returns the logger for component and the fields to add: the user id
// is only added outside a request.
func (sl *StructuredLogger) scoped(ctx context.Context, component, userID string) (*Logger, LogFields) {
	if rl, ok := fromContext(ctx); ok {
		return rl.WithComponent(component), NewFields()
	}
	return sl.logger.WithComponent(component), NewFields().WithUser(userID)
}

// LogBudgetSaved records a stored budget with its derived totals.
func (sl *StructuredLogger) LogBudgetSaved(ctx context.Context, userID, totalExpenses, remaining string, overBudget bool) {
	l, f := sl.scoped(ctx, ComponentBudget, userID)
	args := append(f.WithOperation(OpUpdate).ToSlice(),
		"total_expenses", totalExpenses,
		"remaining_balance", remaining,
		"over_budget", overBudget)
	l.InfoContext(ctx, "Budget saved", args...)
}

// LogGoalChanged records a goal being created, updated, deleted or
// contributed to; op says which.
func (sl *StructuredLogger) LogGoalChanged(ctx context.Context, op, userID, goalID, name, target string, months int) {
	l, f := sl.scoped(ctx, ComponentGoal, userID)
	l.InfoContext(ctx, "Goal changed", f.WithGoal(goalID, name, target, months).WithOperation(op).ToSlice()...)
}

// LogError records an unexpected failure. extra may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, op string, extra LogFields) {
	l, f := sl.scoped(ctx, component, "")
	for k, v := range extra {
		f[k] = v
	}
	l.ErrorContext(ctx, msg, f.WithError(err).WithOperation(op).ToSlice()...)
}
