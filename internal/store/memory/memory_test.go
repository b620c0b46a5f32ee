package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"penny/internal/core"
	"penny/internal/store"
	"penny/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestListGoalsReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, core.User{FirstName: "A", LastName: "B", Email: "a@b.co"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	g, err := s.CreateGoal(ctx, core.GoalRecord{UserID: u.ID, Name: "X", TargetAmount: decimal.NewFromInt(10), Months: 1})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	list, _ := s.ListGoals(ctx, u.ID)
	list[0].Name = "mutated"
	list[0].SavingsHistory = append(list[0].SavingsHistory, core.Contribution{Amount: decimal.NewFromInt(5)})

	got, err := s.GetGoal(ctx, u.ID, g.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.Name != "X" || len(got.SavingsHistory) != 0 {
		t.Fatalf("store state leaked through returned slice: %+v", got)
	}
}
