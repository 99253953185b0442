// Package badges evaluates badge definitions and grants them at most once
// per user.
package badges

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	prommetrics "github.com/roamly/progression-engine/internal/metrics"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/requirements"
	"github.com/roamly/progression-engine/pkg/logger"
)

// Award paths reported in metrics.
const (
	viaScan       = "scan"
	viaTaskReward = "task_reward"
)

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	ListDefinitions() ([]models.BadgeDefinition, error)
	GetDefinitionByID(id uint) (*models.BadgeDefinition, error)
	HasEarned(userID, badgeID uint) (bool, error)
	CreateUserBadge(userID, badgeID uint) (*models.UserBadge, error)
	GetUserBadges(userID uint) ([]models.UserBadge, error)
	GetBadgeHoldersCount(badgeID uint) (int64, error)
}

// StatsStore interface for snapshot reads and ledger applies.
type StatsStore interface {
	GetOrInit(userID uint) (*models.UserProgression, error)
	ApplyDelta(userID uint, sourceType, sourceID string, statDeltas map[string]uint64, pointsDelta uint64) (*models.UserProgression, bool, error)
}

// Service handles badge evaluation and granting.
type Service struct {
	badgeRepo BadgeRepository
	stats     StatsStore
	log       *logger.Logger
}

// NewService creates a new badge service.
func NewService(badgeRepo *repository.BadgeRepository, stats *repository.ProgressionRepository, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		stats:     stats,
		log:       log,
	}
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(badgeRepo BadgeRepository, stats StatsStore, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		stats:     stats,
		log:       log,
	}
}

// Evaluate scans all badge definitions against the user's current snapshot
// and grants every badge whose requirements are met and not yet held.
// Returns the badges newly granted by this call. A definition that fails to
// parse or grant is logged and skipped; it never aborts the rest of the scan.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) Evaluate(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	defs, err := s.badgeRepo.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to list badge definitions: %w", err)
	}

	snapshot, err := s.stats.GetOrInit(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	stats := snapshot.Stats()

	var newlyEarned []models.UserBadge
	for i := range defs {
		def := &defs[i]

		earned, err := s.badgeRepo.HasEarned(userID, def.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", def.Name).
				Msg("Failed to check badge ownership")
			continue
		}
		if earned {
			continue
		}

		reqs, err := requirements.Decode(def.Requirements)
		if err != nil {
			// Malformed definition fails closed: skipped, never granted.
			s.log.Warn().
				Err(err).
				Str("badge", def.Name).
				Msg("Skipping badge with malformed requirements")
			continue
		}
		if !requirements.Matches(reqs, stats) {
			continue
		}

		grant, err := s.grant(userID, def, viaScan)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", def.Name).
				Msg("Failed to grant badge")
			continue
		}
		if grant != nil {
			newlyEarned = append(newlyEarned, *grant)
		}
	}

	return newlyEarned, nil
}

// Award grants a specific badge directly, bypassing requirement evaluation.
// This is the entry point task rewards use. It shares the idempotent insert
// path with Evaluate, so a badge reachable both ways is still granted at
// most once; a duplicate grant returns (nil, nil).
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) Award(ctx context.Context, userID, badgeID uint) (*models.UserBadge, error) {
	def, err := s.badgeRepo.GetDefinitionByID(badgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get badge definition %d: %w", badgeID, err)
	}
	return s.grant(userID, def, viaTaskReward)
}

// grant inserts the write-once user badge row and applies the badge's point
// reward through the ledger. The insert is the serialization point: the
// losing writer of a concurrent grant sees ErrDuplicate and stops without
// applying any points.
func (s *Service) grant(userID uint, def *models.BadgeDefinition, via string) (*models.UserBadge, error) {
	grant, err := s.badgeRepo.CreateUserBadge(userID, def.ID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}

	if def.PointsReward > 0 {
		// Keyed by badge ID, so a replayed grant of the same badge can
		// never double-count points.
		sourceID := strconv.FormatUint(uint64(def.ID), 10)
		if _, _, err := s.stats.ApplyDelta(userID, models.SourceBadgeAwarded, sourceID, nil, def.PointsReward); err != nil {
			// The grant row exists; the points apply is retryable later.
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", def.Name).
				Msg("Badge granted but points apply failed")
		}
	}

	prommetrics.RecordBadgeAwarded(def.Name, via)
	count, err := s.badgeRepo.GetBadgeHoldersCount(def.ID)
	if err == nil {
		prommetrics.SetActiveBadgeHolders(def.Name, int(count))
	}

	s.log.Info().
		Uint("user_id", userID).
		Str("badge", def.Name).
		Str("via", via).
		Msg("Badge awarded")

	grant.Badge = *def
	return grant, nil
}

// GetUserBadges retrieves all badges earned by a user.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(userID)
}

// GetBadgeCatalog retrieves all available badge definitions.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.BadgeDefinition, error) {
	return s.badgeRepo.ListDefinitions()
}
