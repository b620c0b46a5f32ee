package services

import (
	"context"
	"fmt"

	"penny/internal/amqp"
	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/store"
)

// SnapshotPublisher is satisfied by *amqp.Client.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, msg *amqp.SnapshotMessage) error
}

// ProfileService wraps a store and announces every budget and goal change
// as a snapshot message. Writes succeed once the store accepts them; a
// failed publish is only logged.
type ProfileService struct {
	store.Store
	publisher SnapshotPublisher
}

func NewProfileService(s store.Store, publisher SnapshotPublisher) *ProfileService {
	return &ProfileService{Store: s, publisher: publisher}
}

// SaveBudget saves locally and publishes a budget snapshot
func (s *ProfileService) SaveBudget(ctx context.Context, userID string, rec core.BudgetRecord) (core.BudgetRecord, error) {
	saved, err := s.Store.SaveBudget(ctx, userID, rec)
	if err != nil {
		return core.BudgetRecord{}, fmt.Errorf("save budget: %w", err)
	}
	s.publish(ctx, userID, func(email string) *amqp.SnapshotMessage {
		return amqp.NewBudgetSnapshot(userID, email, saved)
	})
	return saved, nil
}

func (s *ProfileService) CreateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	created, err := s.Store.CreateGoal(ctx, g)
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("create goal: %w", err)
	}
	s.publishGoal(ctx, created)
	return created, nil
}

func (s *ProfileService) UpdateGoal(ctx context.Context, g core.GoalRecord) (core.GoalRecord, error) {
	updated, err := s.Store.UpdateGoal(ctx, g)
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("update goal: %w", err)
	}
	s.publishGoal(ctx, updated)
	return updated, nil
}

func (s *ProfileService) AddContribution(ctx context.Context, userID, goalID string, c core.Contribution) (core.GoalRecord, error) {
	g, err := s.Store.AddContribution(ctx, userID, goalID, c)
	if err != nil {
		return core.GoalRecord{}, fmt.Errorf("add contribution: %w", err)
	}
	s.publishGoal(ctx, g)
	return g, nil
}

func (s *ProfileService) DeleteGoal(ctx context.Context, userID, goalID string) error {
	if err := s.Store.DeleteGoal(ctx, userID, goalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	s.publish(ctx, userID, func(email string) *amqp.SnapshotMessage {
		return amqp.NewGoalDeleted(userID, email, goalID)
	})
	return nil
}

func (s *ProfileService) publishGoal(ctx context.Context, g core.GoalRecord) {
	s.publish(ctx, g.UserID, func(email string) *amqp.SnapshotMessage {
		return amqp.NewGoalSnapshot(g.UserID, email, g)
	})
}

func (s *ProfileService) publish(ctx context.Context, userID string, build func(email string) *amqp.SnapshotMessage) {
	log := applog.FromContext(ctx).WithComponent(applog.ComponentAMQP)
	if s.publisher == nil {
		log.DebugContext(ctx, "No publisher, snapshot not sent")
		return
	}
	var email string
	if u, err := s.Store.UserByID(ctx, userID); err == nil {
		email = u.Email
	}
	msg := build(email)
	if err := s.publisher.PublishSnapshot(ctx, msg); err != nil {
		// the change is already stored; export catches up on the next snapshot
		log.ErrorContext(ctx, "Snapshot publish failed",
			"kind", msg.Kind, applog.FieldUserID, userID, applog.FieldError, err)
	}
}
