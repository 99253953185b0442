// Package catalog loads the task and badge catalog from a YAML seed file and
// upserts it into the database at startup.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/service/requirements"
	"github.com/roamly/progression-engine/pkg/logger"
)

// TaskRepository interface for task definition upserts.
type TaskRepository interface {
	UpsertDefinition(task *models.TaskDefinition) error
}

// BadgeRepository interface for badge definition upserts.
type BadgeRepository interface {
	UpsertDefinition(badge *models.BadgeDefinition) error
	GetDefinitionByName(name string) (*models.BadgeDefinition, error)
}

// BadgeSeed is one badge entry in the catalog file.
type BadgeSeed struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Icon         string            `yaml:"icon"`
	Requirements map[string]uint64 `yaml:"requirements"`
	PointsReward uint64            `yaml:"points_reward"`
}

// TaskSeed is one task entry in the catalog file. BadgeReward references a
// badge from the same file by name.
type TaskSeed struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Requirements map[string]uint64 `yaml:"requirements"`
	PointsReward uint64            `yaml:"points_reward"`
	BadgeReward  string            `yaml:"badge_reward"`
	TargetRole   string            `yaml:"target_role"`
	Active       *bool             `yaml:"active"`
}

// File is the catalog seed file layout.
type File struct {
	Badges []BadgeSeed `yaml:"badges"`
	Tasks  []TaskSeed  `yaml:"tasks"`
}

// Seeder loads and applies catalog seed files.
type Seeder struct {
	taskRepo  TaskRepository
	badgeRepo BadgeRepository
	log       *logger.Logger
}

// NewSeeder creates a new catalog seeder.
func NewSeeder(taskRepo TaskRepository, badgeRepo BadgeRepository, log *logger.Logger) *Seeder {
	return &Seeder{taskRepo: taskRepo, badgeRepo: badgeRepo, log: log}
}

// Load reads the seed file at path and upserts its definitions. Malformed
// entries fail closed: they are logged and skipped, never stored, so the
// engine only ever evaluates definitions that passed validation. Badges are
// applied before tasks so badge_reward references resolve.
func (s *Seeder) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	var badges, tasks, skipped int
	for i := range file.Badges {
		if err := s.applyBadge(&file.Badges[i]); err != nil {
			s.log.Warn().Err(err).Str("badge", file.Badges[i].Name).Msg("Skipping invalid badge definition")
			skipped++
			continue
		}
		badges++
	}
	for i := range file.Tasks {
		if err := s.applyTask(&file.Tasks[i]); err != nil {
			s.log.Warn().Err(err).Str("task", file.Tasks[i].Name).Msg("Skipping invalid task definition")
			skipped++
			continue
		}
		tasks++
	}

	s.log.Info().
		Str("path", path).
		Int("badges", badges).
		Int("tasks", tasks).
		Int("skipped", skipped).
		Msg("Catalog loaded")
	return nil
}

func (s *Seeder) applyBadge(seed *BadgeSeed) error {
	if seed.Name == "" {
		return fmt.Errorf("badge name is required")
	}
	if err := requirements.Validate(seed.Requirements); err != nil {
		return err
	}
	raw, err := json.Marshal(seed.Requirements)
	if err != nil {
		return fmt.Errorf("failed to encode requirements: %w", err)
	}

	return s.badgeRepo.UpsertDefinition(&models.BadgeDefinition{
		Name:         seed.Name,
		Description:  seed.Description,
		Icon:         seed.Icon,
		Requirements: raw,
		PointsReward: seed.PointsReward,
	})
}

func (s *Seeder) applyTask(seed *TaskSeed) error {
	if seed.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if err := requirements.Validate(seed.Requirements); err != nil {
		return err
	}

	targetRole := seed.TargetRole
	if targetRole == "" {
		targetRole = models.RoleAll
	}
	if !models.IsValidTargetRole(targetRole) {
		return fmt.Errorf("invalid target role %q", targetRole)
	}

	var badgeRewardID *uint
	if seed.BadgeReward != "" {
		badge, err := s.badgeRepo.GetDefinitionByName(seed.BadgeReward)
		if err != nil {
			return fmt.Errorf("unknown badge reward %q: %w", seed.BadgeReward, err)
		}
		badgeRewardID = &badge.ID
	}

	raw, err := json.Marshal(seed.Requirements)
	if err != nil {
		return fmt.Errorf("failed to encode requirements: %w", err)
	}

	active := true
	if seed.Active != nil {
		active = *seed.Active
	}

	return s.taskRepo.UpsertDefinition(&models.TaskDefinition{
		Name:          seed.Name,
		Description:   seed.Description,
		Requirements:  raw,
		PointsReward:  seed.PointsReward,
		BadgeRewardID: badgeRewardID,
		IsActive:      active,
		TargetRole:    targetRole,
	})
}
