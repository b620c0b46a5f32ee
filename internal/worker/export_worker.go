package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"penny/internal/amqp"
	applog "penny/internal/log"
	"penny/internal/sheets"
)

// Stats counts what the worker did since it started.
type Stats struct {
	Budgets   int
	Goals     int
	Deletions int
	Stale     int
	Failures  int
	LastError string
	LastAt    time.Time
}

// ExportWorker writes snapshot messages to a spreadsheet exporter.
// Snapshots older than one already applied for the same record are skipped,
// so a redelivered message never overwrites newer data.
type ExportWorker struct {
	exporter sheets.Exporter
	logger   *applog.Logger

	mu      sync.Mutex
	applied map[string]time.Time
	stats   Stats
}

func NewExportWorker(exporter sheets.Exporter, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		exporter: exporter,
		logger:   logger.WithComponent(applog.ComponentWorker),
		applied:  make(map[string]time.Time),
	}
}

// HandleSnapshot processes a single snapshot message from AMQP. A returned
// error makes the consumer requeue the message.
func (w *ExportWorker) HandleSnapshot(ctx context.Context, msg *amqp.SnapshotMessage) error {
	log := w.logger.With("snapshot_id", msg.ID, "kind", msg.Kind)
	log.DebugContext(ctx, "Processing snapshot", applog.FieldUserID, msg.UserID)

	key := recordKey(msg)
	if w.isStale(key, msg.Timestamp) {
		log.InfoContext(ctx, "Skipping stale snapshot", "key", key)
		w.count(func(s *Stats) { s.Stale++ })
		return nil
	}

	var err error
	switch msg.Kind {
	case amqp.KindBudget:
		err = w.exportBudget(ctx, msg)
	case amqp.KindGoal:
		err = w.exportGoal(ctx, msg)
	case amqp.KindGoalDeleted:
		err = w.deleteGoal(ctx, msg)
	default:
		err = fmt.Errorf("unknown snapshot kind %q", msg.Kind)
	}
	if err != nil {
		w.count(func(s *Stats) {
			s.Failures++
			s.LastError = err.Error()
		})
		log.WarnContext(ctx, "Snapshot export failed", applog.FieldError, err)
		return err
	}

	w.mu.Lock()
	w.applied[key] = msg.Timestamp
	w.stats.LastAt = time.Now()
	w.mu.Unlock()
	return nil
}

func (w *ExportWorker) exportBudget(ctx context.Context, msg *amqp.SnapshotMessage) error {
	b := msg.Budget
	ref, err := w.exporter.UpsertBudget(ctx, sheets.BudgetRow{
		UserID:           msg.UserID,
		Email:            msg.UserEmail,
		Income:           b.Income,
		MonthlyBudget:    b.MonthlyBudget,
		Rent:             b.Rent,
		Food:             b.Food,
		Transport:        b.Transport,
		OtherLiabilities: b.OtherLiabilities,
		ExtraInfo:        b.ExtraInfo,
		TotalExpenses:    b.TotalExpenses,
		RemainingBalance: b.RemainingBalance,
		UpdatedAt:        msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("export budget: %w", err)
	}
	w.count(func(s *Stats) { s.Budgets++ })
	w.logger.InfoContext(ctx, "Exported budget", applog.FieldUserID, msg.UserID, applog.FieldSheetsRef, ref)
	return nil
}

func (w *ExportWorker) exportGoal(ctx context.Context, msg *amqp.SnapshotMessage) error {
	g := msg.Goal
	ref, err := w.exporter.UpsertGoal(ctx, sheets.GoalRow{
		GoalID:        g.GoalID,
		UserID:        msg.UserID,
		Email:         msg.UserEmail,
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		Months:        g.Months,
		MonthlyNeeded: g.MonthlyNeeded,
		Saved:         g.Saved,
		Progress:      g.Progress,
		UpdatedAt:     msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("export goal: %w", err)
	}
	w.count(func(s *Stats) { s.Goals++ })
	w.logger.InfoContext(ctx, "Exported goal", applog.FieldGoalID, g.GoalID, applog.FieldSheetsRef, ref)
	return nil
}

func (w *ExportWorker) deleteGoal(ctx context.Context, msg *amqp.SnapshotMessage) error {
	if err := w.exporter.DeleteGoal(ctx, msg.Goal.GoalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	w.count(func(s *Stats) { s.Deletions++ })
	w.logger.InfoContext(ctx, "Deleted exported goal", applog.FieldGoalID, msg.Goal.GoalID)
	return nil
}

// Stats returns a copy of the counters.
func (w *ExportWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// RunReporter logs the counters every interval until ctx is done.
func (w *ExportWorker) RunReporter(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := w.Stats()
			w.logger.InfoContext(ctx, "Export worker status",
				"budgets", s.Budgets,
				"goals", s.Goals,
				"deletions", s.Deletions,
				"stale", s.Stale,
				"failures", s.Failures,
				"last_error", s.LastError)
		}
	}
}

func (w *ExportWorker) isStale(key string, ts time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.applied[key]
	return ok && ts.Before(last)
}

func (w *ExportWorker) count(fn func(s *Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

// recordKey names the exported row a message touches. Goal updates and
// deletions share a key so a late update cannot revive a deleted goal.
func recordKey(msg *amqp.SnapshotMessage) string {
	if msg.Kind == amqp.KindBudget {
		return "budget:" + msg.UserID
	}
	if msg.Goal != nil {
		return "goal:" + msg.Goal.GoalID
	}
	return "unknown:" + msg.ID
}
