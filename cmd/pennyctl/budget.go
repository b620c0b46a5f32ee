package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"penny/internal/cli"
	"penny/internal/core"
)

const storeTimeout = 5 * time.Second

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect stored budgets",
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's monthly budget and its breakdown",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagEmail == "" {
			return fmt.Errorf("--email is required")
		}
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
		defer cancel()
		user, err := repo.UserByEmail(ctx, core.NormalizeEmail(flagEmail))
		if err != nil {
			return userLookupError(flagEmail, err)
		}
		rec, ok, err := repo.GetBudget(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderBudget(user, rec, ok))
		return nil
	},
}

func init() {
	budgetShowCmd.Flags().StringVar(&flagEmail, "email", "", "Email of the user")
	budgetCmd.AddCommand(budgetShowCmd)
	rootCmd.AddCommand(budgetCmd)
}

func renderBudget(user core.User, rec core.BudgetRecord, ok bool) string {
	var b strings.Builder
	b.WriteString(cli.RenderTitle("Budget of " + user.DisplayName()))
	b.WriteString("\n")
	if !ok || rec.IsEmpty() {
		b.WriteString(cli.Muted("  No budget saved yet."))
		b.WriteString("\n")
		return b.String()
	}

	sum := core.Summarize(rec)
	remaining := cli.Field{Label: "Remaining balance", Value: core.FormatMoney(sum.RemainingBalance), Tone: cli.ToneGood}
	if sum.OverBudget {
		remaining.Tone = cli.ToneBad
	}
	capacity := cli.Field{Label: "Saving capacity", Value: "unknown", Tone: cli.ToneWarn}
	if sum.HasCapacity {
		capacity = cli.Field{Label: "Saving capacity", Value: core.FormatMoney(sum.SavingCapacity)}
	}
	b.WriteString(cli.RenderCard("Month", []cli.Field{
		{Label: "Income", Value: amountText(rec.Income)},
		{Label: "Monthly budget", Value: amountText(rec.MonthlyBudget)},
		{Label: "Total expenses", Value: core.FormatMoney(sum.TotalExpenses)},
		remaining,
		capacity,
	}))

	slices := core.Breakdown(rec)
	total := decimal.Zero
	for _, s := range slices {
		total = total.Add(s.Amount)
	}
	t := cli.Table{Title: "Breakdown", Headers: []string{"Category", "Amount", "Share"}}
	for _, s := range slices {
		t.Rows = append(t.Rows, []string{s.Name, core.FormatMoney(s.Amount), cli.Bar(share(s.Amount, total), 20)})
	}
	b.WriteString(cli.RenderTable(t))
	if info := strings.TrimSpace(rec.ExtraInfo); info != "" {
		b.WriteString(cli.Muted("  Notes: " + info))
		b.WriteString("\n")
	}
	return b.String()
}

func amountText(a core.Amount) string {
	if v, ok := a.Value(); ok {
		return core.FormatMoney(v)
	}
	return "not provided"
}

// share is part as a whole percentage of total.
func share(part, total decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	return int(part.Div(total).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
