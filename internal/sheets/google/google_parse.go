package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"penny/internal/sheets"
)

var (
	budgetHeader = []string{
		"User ID", "Email", "Income", "Monthly Budget", "Rent", "Food", "Transport",
		"Other Liabilities", "Extra Info", "Total Expenses", "Remaining Balance", "Updated At",
	}
	goalHeader = []string{
		"Goal ID", "User ID", "Email", "Name", "Target Amount", "Months",
		"Monthly Needed", "Saved", "Progress", "Updated At",
	}
)

func budgetValues(r sheets.BudgetRow) []any {
	return []any{
		r.UserID, r.Email, r.Income, r.MonthlyBudget, r.Rent, r.Food, r.Transport,
		r.OtherLiabilities, r.ExtraInfo, r.TotalExpenses, r.RemainingBalance,
		formatTime(r.UpdatedAt),
	}
}

func goalValues(r sheets.GoalRow) []any {
	return []any{
		r.GoalID, r.UserID, r.Email, r.Name, r.TargetAmount, strconv.Itoa(r.Months),
		r.MonthlyNeeded, r.Saved, r.Progress, formatTime(r.UpdatedAt),
	}
}

func headerValues(h []string) []any {
	out := make([]any, len(h))
	for i, v := range h {
		out[i] = v
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// locateRow scans the key column (first cell of each row) and returns the
// 1-based row holding key, or 0. free is the first blank row after the
// header, or the row after the last one when there is none.
func locateRow(values [][]any, key string) (match, free int) {
	for i, row := range values {
		if i == 0 {
			// header
			continue
		}
		cell := ""
		if len(row) > 0 {
			cell = strings.TrimSpace(fmt.Sprint(row[0]))
		}
		if cell == "" {
			if free == 0 {
				free = i + 1
			}
			continue
		}
		if cell == key && match == 0 {
			match = i + 1
		}
	}
	if free == 0 {
		free = len(values) + 1
		if free < 2 {
			free = 2
		}
	}
	return match, free
}

// lastColumn returns the A1 column letter for n columns (n <= 26).
func lastColumn(n int) string {
	return string(rune('A' + n - 1))
}

func rowRange(sheet string, row, cols int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, row, lastColumn(cols), row)
}
