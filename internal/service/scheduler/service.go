// Package scheduler provides the nightly full-catalog sweep that re-evaluates
// every user's tasks and badges.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roamly/progression-engine/internal/config"
	prommetrics "github.com/roamly/progression-engine/internal/metrics"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/badges"
	"github.com/roamly/progression-engine/internal/service/tasks"
	"github.com/roamly/progression-engine/pkg/logger"
)

// UserLister interface for enumerating users to sweep.
type UserLister interface {
	List(role string) ([]models.User, error)
}

// TaskEvaluator interface for per-user task evaluation.
type TaskEvaluator interface {
	Evaluate(ctx context.Context, userID uint, triggerKeys map[string]bool) (*tasks.Result, error)
}

// BadgeEvaluator interface for per-user badge evaluation.
type BadgeEvaluator interface {
	Evaluate(ctx context.Context, userID uint) ([]models.UserBadge, error)
}

// Service runs the scheduled sweep. Eligibility is detected lazily on user
// actions, so the sweep exists to catch users whose pending grants would
// otherwise wait for their next action, for example after a catalog reload.
type Service struct {
	config   *config.Config
	userRepo UserLister
	taskSvc  TaskEvaluator
	badgeSvc BadgeEvaluator
	log      *logger.Logger
	cron     *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	userRepo *repository.UserRepository,
	taskSvc *tasks.Service,
	badgeSvc *badges.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		config:   cfg,
		userRepo: userRepo,
		taskSvc:  taskSvc,
		badgeSvc: badgeSvc,
		log:      log,
	}
}

// NewServiceWithInterfaces creates a new scheduler service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	cfg *config.Config,
	userRepo UserLister,
	taskSvc TaskEvaluator,
	badgeSvc BadgeEvaluator,
	log *logger.Logger,
) *Service {
	return &Service{
		config:   cfg,
		userRepo: userRepo,
		taskSvc:  taskSvc,
		badgeSvc: badgeSvc,
		log:      log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.config.Scheduler.SweepTime, func() {
		s.RunSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.config.Scheduler.SweepTime).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// RunSweep evaluates the full task and badge catalog for every user. A
// failing user is logged and skipped; the sweep keeps going.
func (s *Service) RunSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	s.log.Info().Msg("Running catalog sweep job")

	users, err := s.userRepo.List("")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list users for sweep")
		prommetrics.RecordSweepJobRun("error")
		return
	}

	var tasksCompleted, badgesAwarded, failures int
	for _, user := range users {
		taskResult, err := s.taskSvc.Evaluate(ctx, user.ID, nil)
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", user.ID).Msg("Sweep task evaluation failed")
			failures++
		} else {
			tasksCompleted += len(taskResult.Completions)
			badgesAwarded += len(taskResult.Badges)
		}

		grants, err := s.badgeSvc.Evaluate(ctx, user.ID)
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", user.ID).Msg("Sweep badge evaluation failed")
			failures++
		} else {
			badgesAwarded += len(grants)
		}
	}

	status := "success"
	if failures > 0 {
		status = "partial"
	}
	prommetrics.RecordSweepJobRun(status)

	s.log.Info().
		Int("users", len(users)).
		Int("tasks_completed", tasksCompleted).
		Int("badges_awarded", badgesAwarded).
		Int("failures", failures).
		Dur("duration", time.Since(start)).
		Msg("Catalog sweep job completed")
}
