package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"penny/internal/amqp"
	"penny/internal/core"
	"penny/internal/sheets"
	"penny/internal/sheets/memory"
)

func TestHandleSnapshot_Budget(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(exp, nil)

	msg := amqp.NewBudgetSnapshot("u1", "a@example.com", core.BudgetRecord{
		Income: core.AmountFromFloat(1000),
		Rent:   core.AmountFromFloat(400),
	})
	if err := w.HandleSnapshot(context.Background(), msg); err != nil {
		t.Fatalf("HandleSnapshot() error = %v", err)
	}

	row, ok := exp.Budget("u1")
	if !ok {
		t.Fatal("budget row not exported")
	}
	if row.Email != "a@example.com" || row.Income != "1000.00" || row.RemainingBalance != "600.00" {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Food != "" {
		t.Errorf("absent food should export empty, got %q", row.Food)
	}
	if w.Stats().Budgets != 1 {
		t.Errorf("stats = %+v", w.Stats())
	}
}

func TestHandleSnapshot_GoalThenDelete(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(exp, nil)
	ctx := context.Background()

	g := core.GoalRecord{ID: "g1", UserID: "u1", Name: "Bike", TargetAmount: decimal.NewFromInt(1200), Months: 6}
	if err := w.HandleSnapshot(ctx, amqp.NewGoalSnapshot("u1", "", g)); err != nil {
		t.Fatalf("goal snapshot: %v", err)
	}
	goals := exp.Goals()
	if len(goals) != 1 || goals[0].MonthlyNeeded != "200.00" || goals[0].Months != 6 {
		t.Fatalf("unexpected goals %+v", goals)
	}

	if err := w.HandleSnapshot(ctx, amqp.NewGoalDeleted("u1", "", "g1")); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	if len(exp.Goals()) != 0 {
		t.Fatal("goal should be removed")
	}
	if s := w.Stats(); s.Goals != 1 || s.Deletions != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHandleSnapshot_SkipsStale(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(exp, nil)
	ctx := context.Background()

	older := amqp.NewBudgetSnapshot("u1", "", core.BudgetRecord{Income: core.AmountFromFloat(1)})
	newer := amqp.NewBudgetSnapshot("u1", "", core.BudgetRecord{Income: core.AmountFromFloat(2)})
	older.Timestamp = newer.Timestamp.Add(-time.Minute)

	if err := w.HandleSnapshot(ctx, newer); err != nil {
		t.Fatalf("newer: %v", err)
	}
	if err := w.HandleSnapshot(ctx, older); err != nil {
		t.Fatalf("older: %v", err)
	}

	row, _ := exp.Budget("u1")
	if row.Income != "2.00" {
		t.Errorf("stale snapshot overwrote newer data: income %q", row.Income)
	}
	if w.Stats().Stale != 1 {
		t.Errorf("stale count = %d, want 1", w.Stats().Stale)
	}
}

func TestHandleSnapshot_LateUpdateDoesNotReviveDeletedGoal(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(exp, nil)
	ctx := context.Background()

	g := core.GoalRecord{ID: "g1", UserID: "u1", Name: "Bike", TargetAmount: decimal.NewFromInt(10), Months: 1}
	update := amqp.NewGoalSnapshot("u1", "", g)
	deleted := amqp.NewGoalDeleted("u1", "", "g1")
	update.Timestamp = deleted.Timestamp.Add(-time.Second)

	if err := w.HandleSnapshot(ctx, deleted); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := w.HandleSnapshot(ctx, update); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(exp.Goals()) != 0 {
		t.Fatal("late update revived a deleted goal")
	}
}

type failingExporter struct{ sheets.Exporter }

func (failingExporter) UpsertBudget(context.Context, sheets.BudgetRow) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandleSnapshot_ExporterFailure(t *testing.T) {
	w := NewExportWorker(failingExporter{}, nil)

	err := w.HandleSnapshot(context.Background(), amqp.NewBudgetSnapshot("u1", "", core.BudgetRecord{}))
	if err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	s := w.Stats()
	if s.Failures != 1 || s.LastError == "" {
		t.Errorf("stats = %+v", s)
	}

	// a failed message is not marked applied, so its retry goes through
	if w.isStale("budget:u1", time.Time{}) {
		t.Error("failed snapshot should not be recorded as applied")
	}
}

func TestRunReporter_StopsWithContext(t *testing.T) {
	w := NewExportWorker(memory.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunReporter(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunReporter() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}
