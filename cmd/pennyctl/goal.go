package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"penny/internal/cli"
	"penny/internal/core"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Inspect savings goals",
}

var goalCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every goal of a user against their saving capacity",
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
		goals, err := repo.ListGoals(ctx, user.ID)
		if err != nil {
			return err
		}
		budget, _, err := repo.GetBudget(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderGoals(goals, budget))
		return nil
	},
}

func init() {
	goalCheckCmd.Flags().StringVar(&flagEmail, "email", "", "Email of the user")
	goalCmd.AddCommand(goalCheckCmd)
	rootCmd.AddCommand(goalCmd)
}

// renderGoals lists goals with their progress and whether the budget's
// saving capacity covers the monthly requirement.
func renderGoals(goals []core.GoalRecord, budget core.BudgetRecord) string {
	if len(goals) == 0 {
		return cli.Muted("  No goals yet.") + "\n"
	}
	t := cli.Table{
		Title:   "Goals",
		Headers: []string{"Name", "Target", "Saved", "Months", "Per month", "Progress", "Status"},
	}
	for _, g := range goals {
		a, err := core.AssessGoal(g, budget)
		if err != nil {
			t.Rows = append(t.Rows, []string{g.Name, core.FormatMoney(g.TargetAmount), "", "", "", "", cli.Warn("invalid")})
			continue
		}
		progress, _ := core.GoalProgress(g)
		t.Rows = append(t.Rows, []string{
			g.Name,
			core.FormatMoney(g.TargetAmount),
			core.FormatMoney(g.Saved()),
			strconv.Itoa(g.Months),
			core.FormatMoney(a.Required),
			cli.Bar(share(progress, decimal.NewFromInt(1)), 10),
			goalStatus(a),
		})
	}
	return cli.RenderTable(t)
}

func goalStatus(a core.Achievability) string {
	switch {
	case !a.HasCapacity:
		return cli.Warn("no budget")
	case a.Achievable:
		return "on track"
	default:
		return cli.Warn("short " + core.FormatMoney(a.Shortfall))
	}
}
