package assistant

import (
	"fmt"
	"strings"

	"penny/internal/core"
)

// NotProvided replaces every absent value in the prompt context.
const NotProvided = "not provided"

// MaxHistory bounds how many earlier messages are replayed into a prompt.
const MaxHistory = 20

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role
	Content string
}

// PromptInput is everything a chat prompt is built from. Budget is nil when
// the user has not saved one. Goals are rendered in the given order.
type PromptInput struct {
	Persona     PersonaSpec
	Budget      *core.BudgetRecord
	Goals       []core.GoalRecord
	History     []Message
	UserName    string
	UserMessage string
	MaxChars    int
}

const replyFormat = `Reply with a single JSON object and nothing else. Use exactly these keys:
- "response": string, your answer to the user, Markdown allowed%s
- "quit": boolean, true only if the user clearly wants to end the conversation
- "name": string, the user's first name if you know it, otherwise %q
- "predictiveText1": string, a short follow-up question the user might ask next
- "predictiveText2": string, a different short follow-up question`

// BuildPrompt renders the chat prompt: persona instructions and reply
// format, then budget and goal context, then history, then the user's
// message. The output depends only on in.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString(in.Persona.Instructions)
	b.WriteString("\n\n")
	limit := ""
	if in.MaxChars > 0 {
		limit = fmt.Sprintf(", at most %d characters", in.MaxChars)
	}
	fmt.Fprintf(&b, replyFormat, limit, DefaultName)
	b.WriteString("\n\n")

	writeContext(&b, in)

	if h := recentHistory(in.History); len(h) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range h {
			fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), strings.TrimSpace(m.Content))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User: %s", in.UserMessage)
	return b.String()
}

func writeContext(b *strings.Builder, in PromptInput) {
	b.WriteString("Here is what is known about the user. Do not invent values marked \"" + NotProvided + "\".\n")
	fmt.Fprintf(b, "- Name: %s\n", orNotProvided(in.UserName))
	b.WriteString("\n")

	b.WriteString("Budget:\n")
	var r core.BudgetRecord
	if in.Budget != nil {
		r = *in.Budget
	}
	fmt.Fprintf(b, "- Monthly Income: %s\n", amountText(r.Income))
	fmt.Fprintf(b, "- Monthly Budget: %s\n", amountText(r.MonthlyBudget))
	fmt.Fprintf(b, "- Rent: %s\n", amountText(r.Rent))
	fmt.Fprintf(b, "- Food: %s\n", amountText(r.Food))
	fmt.Fprintf(b, "- Transport: %s\n", amountText(r.Transport))
	fmt.Fprintf(b, "- Other Liabilities: %s\n", amountText(r.OtherLiabilities))
	fmt.Fprintf(b, "- Extra Info: %s\n", orNotProvided(r.ExtraInfo))
	if in.Budget != nil && r.Income.Present() {
		fmt.Fprintf(b, "- Total Expenses: %s\n", core.TotalExpenses(r).StringFixed(2))
		fmt.Fprintf(b, "- Remaining Balance: %s\n", core.RemainingBalance(r).StringFixed(2))
	}
	if c, ok := core.MonthlySavingCapacity(r); ok {
		fmt.Fprintf(b, "- Monthly Saving Capacity: %s\n", c.StringFixed(2))
	} else {
		fmt.Fprintf(b, "- Monthly Saving Capacity: %s\n", NotProvided)
	}
	b.WriteString("\n")

	b.WriteString("Savings goals:\n")
	if len(in.Goals) == 0 {
		fmt.Fprintf(b, "- %s\n", NotProvided)
	}
	for _, g := range in.Goals {
		need := NotProvided
		if m, err := core.GoalMonthlyRequirement(g); err == nil {
			need = m.StringFixed(2)
		}
		fmt.Fprintf(b, "- %s: target %s over %d months, needs %s per month, saved %s so far\n",
			orNotProvided(g.Name), g.TargetAmount.StringFixed(2), g.Months, need, g.Saved().StringFixed(2))
	}
	b.WriteString("\n")
}

// GoalPrompt asks for a free-text achievability analysis of one goal.
func GoalPrompt(p PersonaSpec, g core.GoalRecord, a core.Achievability) string {
	capacity := NotProvided
	if a.HasCapacity {
		capacity = a.Capacity.StringFixed(2)
	}
	return fmt.Sprintf("%s\n\nGoal: %s for %s over %d months. Monthly saving needed: %s. "+
		"User's estimated monthly saving capacity: %s. Is this goal achievable? "+
		"Provide a friendly, detailed explanation in Markdown.",
		p.Instructions, g.Name, g.TargetAmount.StringFixed(2), g.Months,
		a.Required.StringFixed(2), capacity)
}

func recentHistory(h []Message) []Message {
	if len(h) > MaxHistory {
		return h[len(h)-MaxHistory:]
	}
	return h
}

func speaker(r Role) string {
	if r == RoleAssistant {
		return "Penny"
	}
	return "User"
}

func amountText(a core.Amount) string {
	if !a.Present() {
		return NotProvided
	}
	return a.String()
}

func orNotProvided(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return NotProvided
	}
	return s
}
