package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"penny/internal/assistant"
	"penny/internal/cli"
	"penny/internal/core"
)

var (
	flagPersona string
	flagName    string
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the assistant a single question",
	Long: "Send one message to the assistant and print its reply. With --email the " +
		"stored budget and goals of that user are included as context.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the assistant personas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := cli.NewAssistant(cfg, logger)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderPersonas(a.Catalog()))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&flagPersona, "persona", "", "Persona to answer as (default from the catalog)")
	askCmd.Flags().StringVar(&flagName, "name", "", "Name the assistant already knows the user by")
	askCmd.Flags().StringVar(&flagEmail, "email", "", "Include this user's budget and goals")
	rootCmd.AddCommand(askCmd, personasCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := cli.NewAssistant(cfg, logger)
	if err != nil {
		return err
	}
	req := assistant.ChatRequest{
		Persona:      flagPersona,
		PreviousName: flagName,
		Message:      strings.Join(args, " "),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GenAITimeout+storeTimeout)
	defer cancel()

	if flagEmail != "" {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()
		user, err := repo.UserByEmail(ctx, core.NormalizeEmail(flagEmail))
		if err != nil {
			return userLookupError(flagEmail, err)
		}
		if rec, ok, err := repo.GetBudget(ctx, user.ID); err != nil {
			return err
		} else if ok {
			req.Budget = &rec
		}
		if req.Goals, err = repo.ListGoals(ctx, user.ID); err != nil {
			return err
		}
		if req.PreviousName == "" {
			req.PreviousName = user.FirstName
		}
	}

	res := a.Chat(ctx, req)
	fmt.Fprint(cmd.OutOrStdout(), renderReply(res))
	return nil
}

func renderReply(res assistant.ChatResult) string {
	var b strings.Builder
	b.WriteString(res.Reply.Response)
	b.WriteString("\n")
	if s := res.Reply.Suggestions(); len(s) > 0 {
		b.WriteString(cli.Muted("  try: " + strings.Join(s, " | ")))
		b.WriteString("\n")
	}
	if res.Reply.Quit {
		b.WriteString(cli.Muted("  (conversation ended)"))
		b.WriteString("\n")
	}
	if res.Err != nil {
		b.WriteString(cli.Warn("  fallback reply: " + res.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPersonas(c *assistant.Catalog) string {
	t := cli.Table{Headers: []string{"Persona", "Default"}}
	for _, name := range c.Names() {
		def := ""
		if name == c.Default {
			def = "yes"
		}
		t.Rows = append(t.Rows, []string{string(name), def})
	}
	return cli.RenderTable(t)
}

func userLookupError(email string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("no user with email %s", email)
	}
	return err
}
