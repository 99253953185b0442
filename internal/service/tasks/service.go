// Package tasks evaluates task definitions against user snapshots and
// grants completions exactly once.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	prommetrics "github.com/roamly/progression-engine/internal/metrics"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/badges"
	"github.com/roamly/progression-engine/internal/service/requirements"
	"github.com/roamly/progression-engine/pkg/logger"
)

// TaskRepository interface for task operations.
type TaskRepository interface {
	ListActiveForRole(role string) ([]models.TaskDefinition, error)
	ListDefinitions() ([]models.TaskDefinition, error)
	GetCompletedTaskIDs(userID uint) (map[uint]bool, error)
	CreateCompletion(userID, taskID uint) (*models.TaskCompletion, error)
	GetCompletionsByUser(userID uint) ([]models.TaskCompletion, error)
}

// StatsStore interface for snapshot reads and ledger applies.
type StatsStore interface {
	GetOrInit(userID uint) (*models.UserProgression, error)
	ApplyDelta(userID uint, sourceType, sourceID string, statDeltas map[string]uint64, pointsDelta uint64) (*models.UserProgression, bool, error)
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// BadgeAwarder is the direct badge-grant entry point used for task rewards.
type BadgeAwarder interface {
	Award(ctx context.Context, userID, badgeID uint) (*models.UserBadge, error)
}

// Service handles task evaluation and completion granting.
type Service struct {
	taskRepo TaskRepository
	stats    StatsStore
	userRepo UserRepository
	awarder  BadgeAwarder
	log      *logger.Logger
}

// NewService creates a new task service.
func NewService(
	taskRepo *repository.TaskRepository,
	stats *repository.ProgressionRepository,
	userRepo *repository.UserRepository,
	badgeService *badges.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		taskRepo: taskRepo,
		stats:    stats,
		userRepo: userRepo,
		awarder:  badgeService,
		log:      log,
	}
}

// NewServiceWithInterfaces creates a new task service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	taskRepo TaskRepository,
	stats StatsStore,
	userRepo UserRepository,
	awarder BadgeAwarder,
	log *logger.Logger,
) *Service {
	return &Service{
		taskRepo: taskRepo,
		stats:    stats,
		userRepo: userRepo,
		awarder:  awarder,
		log:      log,
	}
}

// Result bundles what a single evaluation granted.
type Result struct {
	Completions []models.TaskCompletion
	Badges      []models.UserBadge
}

// Evaluate checks the user's eligible task definitions against their current
// snapshot and grants every newly satisfied task. triggerKeys optionally
// limits evaluation to tasks whose requirements mention at least one of the
// given stat keys; an empty set means a full scan.
//
// Granting is atomic with detection: the write-once completion insert
// decides the winner under concurrency, and only the winner applies the
// task's point reward and direct badge reward.
func (s *Service) Evaluate(ctx context.Context, userID uint, triggerKeys map[string]bool) (*Result, error) {
	role := s.userRole(userID)

	defs, err := s.taskRepo.ListActiveForRole(role)
	if err != nil {
		return nil, fmt.Errorf("failed to list task definitions: %w", err)
	}

	completed, err := s.taskRepo.GetCompletedTaskIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tasks: %w", err)
	}

	snapshot, err := s.stats.GetOrInit(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	stats := snapshot.Stats()

	result := &Result{}
	for i := range defs {
		def := &defs[i]
		if completed[def.ID] {
			continue
		}

		reqs, err := requirements.Decode(def.Requirements)
		if err != nil {
			// Malformed definition fails closed: skipped, never granted.
			s.log.Warn().
				Err(err).
				Str("task", def.Name).
				Msg("Skipping task with malformed requirements")
			continue
		}
		if len(triggerKeys) > 0 && !intersects(reqs, triggerKeys) {
			continue
		}
		if !requirements.Matches(reqs, stats) {
			continue
		}

		completion, err := s.taskRepo.CreateCompletion(userID, def.ID)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// A concurrent evaluation already won; nothing to do.
				continue
			}
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("task", def.Name).
				Msg("Failed to record task completion")
			continue
		}

		s.applyReward(ctx, userID, def, result)

		completion.Task = *def
		result.Completions = append(result.Completions, *completion)
		prommetrics.RecordTaskCompleted(def.Name)
		s.log.Info().
			Uint("user_id", userID).
			Str("task", def.Name).
			Uint64("points_reward", def.PointsReward).
			Msg("Task completed")
	}

	return result, nil
}

// applyReward applies the point reward and direct badge reward for a freshly
// won completion. Badge rewards never re-enter task evaluation, which caps
// the reward cascade at depth one.
func (s *Service) applyReward(ctx context.Context, userID uint, def *models.TaskDefinition, result *Result) {
	sourceID := strconv.FormatUint(uint64(def.ID), 10)
	deltas := map[string]uint64{models.StatTaskCompletedCount: 1}
	if _, _, err := s.stats.ApplyDelta(userID, models.SourceTaskCompleted, sourceID, deltas, def.PointsReward); err != nil {
		// Completion row exists; the points apply is retryable later.
		s.log.Error().
			Err(err).
			Uint("user_id", userID).
			Str("task", def.Name).
			Msg("Task completed but points apply failed")
	}

	if def.BadgeRewardID == nil {
		return
	}
	grant, err := s.awarder.Award(ctx, userID, *def.BadgeRewardID)
	if err != nil {
		s.log.Error().
			Err(err).
			Uint("user_id", userID).
			Str("task", def.Name).
			Uint("badge_id", *def.BadgeRewardID).
			Msg("Failed to award task badge reward")
		return
	}
	if grant != nil {
		result.Badges = append(result.Badges, *grant)
	}
}

// userRole resolves the user's role for task targeting. A missing user row
// is treated as a plain visitor rather than an error, mirroring how a
// missing snapshot reads as zero.
func (s *Service) userRole(userID uint) string {
	user, err := s.userRepo.GetByID(userID)
	if err != nil || user == nil {
		return models.RoleVisitor
	}
	if !models.IsValidRole(user.Role) {
		return models.RoleVisitor
	}
	return user.Role
}

// intersects reports whether any requirement key is in the trigger set.
func intersects(reqs map[string]uint64, triggerKeys map[string]bool) bool {
	for key := range reqs {
		if triggerKeys[key] {
			return true
		}
	}
	return false
}

// UserTaskStatus pairs a task definition with the user's completion state.
type UserTaskStatus struct {
	Task      models.TaskDefinition `json:"task"`
	Completed bool                  `json:"completed"`
}

// GetUserTasks returns the tasks visible to the user's role with their
// completion status.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetUserTasks(ctx context.Context, userID uint) ([]UserTaskStatus, error) {
	role := s.userRole(userID)

	defs, err := s.taskRepo.ListActiveForRole(role)
	if err != nil {
		return nil, fmt.Errorf("failed to list task definitions: %w", err)
	}
	completed, err := s.taskRepo.GetCompletedTaskIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tasks: %w", err)
	}

	statuses := make([]UserTaskStatus, 0, len(defs))
	for _, def := range defs {
		statuses = append(statuses, UserTaskStatus{
			Task:      def,
			Completed: completed[def.ID],
		})
	}
	return statuses, nil
}
