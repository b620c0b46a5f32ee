package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"penny/internal/core"
)

// SnapshotKind says what a SnapshotMessage carries.
type SnapshotKind string

const (
	KindBudget      SnapshotKind = "budget"
	KindGoal        SnapshotKind = "goal"
	KindGoalDeleted SnapshotKind = "goal_deleted"
)

// BudgetSnapshot is a budget flattened to strings. Empty amounts were not entered.
type BudgetSnapshot struct {
	Income           string `json:"income"`
	MonthlyBudget    string `json:"monthly_budget"`
	Rent             string `json:"rent"`
	Food             string `json:"food"`
	Transport        string `json:"transport"`
	OtherLiabilities string `json:"other_liabilities"`
	ExtraInfo        string `json:"extra_info"`
	TotalExpenses    string `json:"total_expenses"`
	RemainingBalance string `json:"remaining_balance"`
}

// GoalSnapshot is a goal flattened to strings.
type GoalSnapshot struct {
	GoalID        string `json:"goal_id"`
	Name          string `json:"name"`
	TargetAmount  string `json:"target_amount"`
	Months        int    `json:"months"`
	MonthlyNeeded string `json:"monthly_needed"`
	Saved         string `json:"saved"`
	Progress      string `json:"progress"`
}

// SnapshotMessage carries the full state of one record so the export worker
// does not need access to the web process's store.
type SnapshotMessage struct {
	ID        string          `json:"id"`
	Kind      SnapshotKind    `json:"kind"`
	UserID    string          `json:"user_id"`
	UserEmail string          `json:"user_email"`
	Budget    *BudgetSnapshot `json:"budget,omitempty"`
	Goal      *GoalSnapshot   `json:"goal,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(kind SnapshotKind, userID, email string) *SnapshotMessage {
	return &SnapshotMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		UserEmail: email,
		Timestamp: time.Now().UTC(),
	}
}

// NewBudgetSnapshot captures r with its derived totals.
func NewBudgetSnapshot(userID, email string, r core.BudgetRecord) *SnapshotMessage {
	m := newMessage(KindBudget, userID, email)
	m.Budget = &BudgetSnapshot{
		Income:           r.Income.String(),
		MonthlyBudget:    r.MonthlyBudget.String(),
		Rent:             r.Rent.String(),
		Food:             r.Food.String(),
		Transport:        r.Transport.String(),
		OtherLiabilities: r.OtherLiabilities.String(),
		ExtraInfo:        r.ExtraInfo,
		TotalExpenses:    core.TotalExpenses(r).StringFixed(2),
		RemainingBalance: core.RemainingBalance(r).StringFixed(2),
	}
	return m
}

// NewGoalSnapshot captures g with its monthly requirement and progress.
func NewGoalSnapshot(userID, email string, g core.GoalRecord) *SnapshotMessage {
	m := newMessage(KindGoal, userID, email)
	gs := &GoalSnapshot{
		GoalID:       g.ID,
		Name:         g.Name,
		TargetAmount: g.TargetAmount.StringFixed(2),
		Months:       g.Months,
		Saved:        g.Saved().StringFixed(2),
	}
	if need, err := core.GoalMonthlyRequirement(g); err == nil {
		gs.MonthlyNeeded = need.StringFixed(2)
	}
	if p, err := core.GoalProgress(g); err == nil {
		gs.Progress = p.StringFixed(4)
	}
	m.Goal = gs
	return m
}

// NewGoalDeleted announces that a goal no longer exists.
func NewGoalDeleted(userID, email, goalID string) *SnapshotMessage {
	m := newMessage(KindGoalDeleted, userID, email)
	m.Goal = &GoalSnapshot{GoalID: goalID}
	return m
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotMessageFromJSON decodes and checks a message body.
func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("snapshot %s: missing user_id", msg.ID)
	}
	switch msg.Kind {
	case KindBudget:
		if msg.Budget == nil {
			return nil, fmt.Errorf("snapshot %s: budget payload missing", msg.ID)
		}
	case KindGoal, KindGoalDeleted:
		if msg.Goal == nil || msg.Goal.GoalID == "" {
			return nil, fmt.Errorf("snapshot %s: goal payload missing", msg.ID)
		}
	default:
		return nil, fmt.Errorf("snapshot %s: unknown kind %q", msg.ID, msg.Kind)
	}
	return &msg, nil
}
