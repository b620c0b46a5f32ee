// Package memory is a process-local store. Everything is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"penny/internal/core"
)

type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	users   map[string]core.User
	byEmail map[string]string
	budgets map[string]core.BudgetRecord
	goals   map[string][]core.GoalRecord
}

func New() *Store {
	return &Store{
		now:     time.Now,
		users:   make(map[string]core.User),
		byEmail: make(map[string]string),
		budgets: make(map[string]core.BudgetRecord),
		goals:   make(map[string][]core.GoalRecord),
	}
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	u.Email = core.NormalizeEmail(u.Email)
	if u.Email == "" {
		return core.User{}, &core.FieldError{Field: core.FieldEmail, Err: core.ErrInvalidEmail}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return core.User{}, core.ErrEmailTaken
	}
	u.ID = uuid.NewString()
	u.CreatedAt = s.now().UTC()
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetBudget(_ context.Context, userID string) (core.BudgetRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.budgets[userID]
	return r, ok, nil
}

func (s *Store) SaveBudget(_ context.Context, userID string, rec core.BudgetRecord) (core.BudgetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return core.BudgetRecord{}, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	rec.UpdatedAt = s.now().UTC()
	s.budgets[userID] = rec
	return rec, nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.GoalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.goals[userID]
	out := make([]core.GoalRecord, len(src))
	for i, g := range src {
		out[i] = cloneGoal(g)
	}
	return out, nil
}

func (s *Store) GetGoal(_ context.Context, userID, goalID string) (core.GoalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(userID, goalID)
	if i < 0 {
		return core.GoalRecord{}, core.ErrNotFound
	}
	return cloneGoal(s.goals[userID][i]), nil
}

func (s *Store) CreateGoal(_ context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	if err := g.Validate(); err != nil {
		return core.GoalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[g.UserID]; !ok {
		return core.GoalRecord{}, fmt.Errorf("user %s: %w", g.UserID, core.ErrNotFound)
	}
	now := s.now().UTC()
	g.ID = uuid.NewString()
	g.CreatedAt, g.UpdatedAt = now, now
	g = cloneGoal(g)
	s.goals[g.UserID] = append(s.goals[g.UserID], g)
	return cloneGoal(g), nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	if err := g.Validate(); err != nil {
		return core.GoalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(g.UserID, g.ID)
	if i < 0 {
		return core.GoalRecord{}, core.ErrNotFound
	}
	cur := &s.goals[g.UserID][i]
	cur.Name = g.Name
	cur.TargetAmount = g.TargetAmount
	cur.Months = g.Months
	cur.Analysis = g.Analysis
	cur.UpdatedAt = s.now().UTC()
	return cloneGoal(*cur), nil
}

func (s *Store) DeleteGoal(_ context.Context, userID, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(userID, goalID)
	if i < 0 {
		return core.ErrNotFound
	}
	list := s.goals[userID]
	s.goals[userID] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *Store) AddContribution(_ context.Context, userID, goalID string, c core.Contribution) (core.GoalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(userID, goalID)
	if i < 0 {
		return core.GoalRecord{}, core.ErrNotFound
	}
	cur := &s.goals[userID][i]
	if err := cur.AddContribution(c.Date, c.Amount); err != nil {
		return core.GoalRecord{}, err
	}
	cur.UpdatedAt = s.now().UTC()
	return cloneGoal(*cur), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// indexOf must be called with the lock held.
func (s *Store) indexOf(userID, goalID string) int {
	for i, g := range s.goals[userID] {
		if g.ID == goalID {
			return i
		}
	}
	return -1
}

func cloneGoal(g core.GoalRecord) core.GoalRecord {
	g.SavingsHistory = append([]core.Contribution(nil), g.SavingsHistory...)
	return g
}
