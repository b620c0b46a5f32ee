// Package storage is the SQLite implementation of store.Store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"penny/internal/core"
	applog "penny/internal/log"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations run first on their own connection.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser implements store.UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = core.NormalizeEmail(u.Email)
	if u.Email == "" {
		return core.User{}, &core.FieldError{Field: core.FieldEmail, Err: core.ErrInvalidEmail}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.FirstName, u.LastName, u.Email, u.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	logFor(ctx).InfoContext(ctx, "User created", applog.FieldUserID, u.ID)
	return u, nil
}

// UserByEmail implements store.UserStore
func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, created_at FROM users WHERE email = ?`,
		core.NormalizeEmail(email)))
}

// UserByID implements store.UserStore
func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var (
		u       core.User
		created string
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrNotFound
		}
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

// GetBudget implements store.BudgetStore
func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string) (core.BudgetRecord, bool, error) {
	var (
		income, monthly, rent, food, transport, other decimal.NullDecimal
		rec                                           core.BudgetRecord
		updated                                       string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT income, monthly_budget, rent, food, transport, other_liabilities, extra_info, updated_at
		FROM budgets WHERE user_id = ?`, userID).
		Scan(&income, &monthly, &rent, &food, &transport, &other, &rec.ExtraInfo, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetRecord{}, false, nil
	}
	if err != nil {
		return core.BudgetRecord{}, false, fmt.Errorf("get budget: %w", err)
	}
	rec.Income = core.AmountFromNull(income)
	rec.MonthlyBudget = core.AmountFromNull(monthly)
	rec.Rent = core.AmountFromNull(rent)
	rec.Food = core.AmountFromNull(food)
	rec.Transport = core.AmountFromNull(transport)
	rec.OtherLiabilities = core.AmountFromNull(other)
	rec.UpdatedAt = parseTime(updated)
	return rec, true, nil
}

// SaveBudget implements store.BudgetStore
func (r *SQLiteRepository) SaveBudget(ctx context.Context, userID string, rec core.BudgetRecord) (core.BudgetRecord, error) {
	if err := r.requireUser(ctx, userID); err != nil {
		return core.BudgetRecord{}, err
	}
	rec.UpdatedAt = r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, income, monthly_budget, rent, food, transport, other_liabilities, extra_info, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			income = excluded.income,
			monthly_budget = excluded.monthly_budget,
			rent = excluded.rent,
			food = excluded.food,
			transport = excluded.transport,
			other_liabilities = excluded.other_liabilities,
			extra_info = excluded.extra_info,
			updated_at = excluded.updated_at`,
		userID,
		rec.Income.NullDecimal(),
		rec.MonthlyBudget.NullDecimal(),
		rec.Rent.NullDecimal(),
		rec.Food.NullDecimal(),
		rec.Transport.NullDecimal(),
		rec.OtherLiabilities.NullDecimal(),
		rec.ExtraInfo,
		rec.UpdatedAt.Format(timeLayout))
	if err != nil {
		return core.BudgetRecord{}, fmt.Errorf("save budget: %w", err)
	}

	logFor(ctx).InfoContext(ctx, "Budget saved", applog.FieldUserID, userID)
	return rec, nil
}

// ListGoals implements store.GoalStore
func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.GoalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, target_amount, months, analysis, created_at, updated_at
		FROM goals WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	var goals []core.GoalRecord
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		goals = append(goals, g)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	for i := range goals {
		if goals[i].SavingsHistory, err = r.contributions(ctx, goals[i].ID); err != nil {
			return nil, err
		}
	}
	if goals == nil {
		goals = []core.GoalRecord{}
	}
	return goals, nil
}

// GetGoal implements store.GoalStore
func (r *SQLiteRepository) GetGoal(ctx context.Context, userID, goalID string) (core.GoalRecord, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, target_amount, months, analysis, created_at, updated_at
		FROM goals WHERE id = ? AND user_id = ?`, goalID, userID))
	if err != nil {
		return core.GoalRecord{}, err
	}
	if g.SavingsHistory, err = r.contributions(ctx, g.ID); err != nil {
		return core.GoalRecord{}, err
	}
	return g, nil
}

// CreateGoal implements store.GoalStore
func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	if err := g.Validate(); err != nil {
		return core.GoalRecord{}, err
	}
	if err := r.requireUser(ctx, g.UserID); err != nil {
		return core.GoalRecord{}, err
	}
	now := r.now().UTC()
	g.ID = uuid.NewString()
	g.CreatedAt, g.UpdatedAt = now, now
	g.SavingsHistory = nil

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, name, target_amount, months, analysis, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.TargetAmount.String(), g.Months, g.Analysis,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("insert goal: %w", err)
	}

	logFor(ctx).InfoContext(ctx, "Goal created", applog.FieldGoalID, g.ID, applog.FieldUserID, g.UserID)
	return g, nil
}

// UpdateGoal implements store.GoalStore
func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	if err := g.Validate(); err != nil {
		return core.GoalRecord{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE goals SET name = ?, target_amount = ?, months = ?, analysis = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		g.Name, g.TargetAmount.String(), g.Months, g.Analysis, r.now().UTC().Format(timeLayout),
		g.ID, g.UserID)
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("update goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.GoalRecord{}, core.ErrNotFound
	}
	return r.GetGoal(ctx, g.UserID, g.ID)
}

// DeleteGoal implements store.GoalStore
func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, goalID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete goal: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND user_id = ?`, goalID, userID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_contributions WHERE goal_id = ?`, goalID); err != nil {
		return fmt.Errorf("delete goal contributions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete goal: %w", err)
	}

	logFor(ctx).InfoContext(ctx, "Goal deleted", applog.FieldGoalID, goalID, applog.FieldUserID, userID)
	return nil
}

// AddContribution implements store.GoalStore
func (r *SQLiteRepository) AddContribution(ctx context.Context, userID, goalID string, c core.Contribution) (core.GoalRecord, error) {
	g, err := r.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.GoalRecord{}, err
	}
	if err := g.AddContribution(c.Date, c.Amount); err != nil {
		return core.GoalRecord{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("begin add contribution: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO goal_contributions (goal_id, contributed_on, amount) VALUES (?, ?, ?)`,
		goalID, c.Date.UTC().Format(timeLayout), c.Amount.String()); err != nil {
		return core.GoalRecord{}, fmt.Errorf("insert contribution: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE goals SET updated_at = ? WHERE id = ?`, now.Format(timeLayout), goalID); err != nil {
		return core.GoalRecord{}, fmt.Errorf("touch goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.GoalRecord{}, fmt.Errorf("commit contribution: %w", err)
	}

	g.UpdatedAt = now
	logFor(ctx).InfoContext(ctx, "Contribution recorded",
		applog.FieldGoalID, goalID, "amount", c.Amount.String())
	return g, nil
}

func logFor(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentStorage)
}

func (r *SQLiteRepository) requireUser(ctx context.Context, userID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) contributions(ctx context.Context, goalID string) ([]core.Contribution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT contributed_on, amount FROM goal_contributions WHERE goal_id = ? ORDER BY id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []core.Contribution
	for rows.Next() {
		var (
			on     string
			amount decimal.Decimal
		)
		if err := rows.Scan(&on, &amount); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, core.Contribution{Date: parseTime(on), Amount: amount})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(s scanner) (core.GoalRecord, error) {
	var (
		g                core.GoalRecord
		created, updated string
	)
	err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.Months, &g.Analysis, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GoalRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("scan goal: %w", err)
	}
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	return g, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
