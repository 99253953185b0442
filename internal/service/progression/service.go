// Package progression is the engine façade: it turns recorded user actions
// into ledger applies, task and badge evaluation, and level derivation, and
// serves the engine's read projections.
package progression

import (
	"context"
	"fmt"
	"time"

	prommetrics "github.com/roamly/progression-engine/internal/metrics"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/badges"
	"github.com/roamly/progression-engine/internal/service/level"
	"github.com/roamly/progression-engine/internal/service/tasks"
	"github.com/roamly/progression-engine/pkg/logger"
)

// StatsStore interface for snapshot reads and ledger applies.
type StatsStore interface {
	GetOrInit(userID uint) (*models.UserProgression, error)
	ApplyDelta(userID uint, sourceType, sourceID string, statDeltas map[string]uint64, pointsDelta uint64) (*models.UserProgression, bool, error)
	ListTop(limit int, sortKey string) ([]models.UserProgression, error)
	GetEventsByUser(userID uint, limit int) ([]models.RewardEvent, error)
}

// TaskEngine interface for task evaluation.
type TaskEngine interface {
	Evaluate(ctx context.Context, userID uint, triggerKeys map[string]bool) (*tasks.Result, error)
	GetUserTasks(ctx context.Context, userID uint) ([]tasks.UserTaskStatus, error)
}

// BadgeEngine interface for badge evaluation.
type BadgeEngine interface {
	Evaluate(ctx context.Context, userID uint) ([]models.UserBadge, error)
	GetBadgeCatalog(ctx context.Context) ([]models.BadgeDefinition, error)
}

// BadgeRepository interface for badge projections.
type BadgeRepository interface {
	GetEarnedBadgeIDs(userID uint) (map[uint]time.Time, error)
	GetUserBadgeCount(userID uint) (int64, error)
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// SnapshotCache is the optional Redis layer; the service works with a nil
// cache and treats every cache error as a miss.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, userID uint) (*models.UserProgression, error)
	PutSnapshot(ctx context.Context, snapshot *models.UserProgression, ttl time.Duration) error
	TopUserIDs(ctx context.Context, limit int) ([]uint, error)
	RebuildLeaderboard(ctx context.Context, snapshots []models.UserProgression) error
}

// Notifier announces earned rewards; best-effort, may be nil.
type Notifier interface {
	AnnounceBadge(user *models.User, badge *models.BadgeDefinition)
	AnnounceLevelUp(user *models.User, level uint32)
}

// Service is the progression engine entry point consumed by the rest of the
// application.
type Service struct {
	stats       StatsStore
	taskEngine  TaskEngine
	badgeEngine BadgeEngine
	badgeRepo   BadgeRepository
	userRepo    UserRepository
	cache       SnapshotCache
	notifier    Notifier
	snapshotTTL time.Duration
	log         *logger.Logger
}

// NewService creates a new progression service.
func NewService(
	stats *repository.ProgressionRepository,
	taskEngine *tasks.Service,
	badgeEngine *badges.Service,
	badgeRepo *repository.BadgeRepository,
	userRepo *repository.UserRepository,
	cache SnapshotCache,
	notifier Notifier,
	snapshotTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		stats:       stats,
		taskEngine:  taskEngine,
		badgeEngine: badgeEngine,
		badgeRepo:   badgeRepo,
		userRepo:    userRepo,
		cache:       cache,
		notifier:    notifier,
		snapshotTTL: snapshotTTL,
		log:         log,
	}
}

// NewServiceWithInterfaces creates a new progression service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	stats StatsStore,
	taskEngine TaskEngine,
	badgeEngine BadgeEngine,
	badgeRepo BadgeRepository,
	userRepo UserRepository,
	cache SnapshotCache,
	notifier Notifier,
	snapshotTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		stats:       stats,
		taskEngine:  taskEngine,
		badgeEngine: badgeEngine,
		badgeRepo:   badgeRepo,
		userRepo:    userRepo,
		cache:       cache,
		notifier:    notifier,
		snapshotTTL: snapshotTTL,
		log:         log,
	}
}

// ActionResult is what RecordAction hands back to the caller for UI feedback.
type ActionResult struct {
	Snapshot  *models.UserProgression `json:"snapshot"`
	Applied   bool                    `json:"applied"`
	NewTasks  []models.TaskCompletion `json:"new_tasks"`
	NewBadges []models.UserBadge      `json:"new_badges"`
}

// RecordAction applies a reward-causing action and runs task and badge
// evaluation against the fresh snapshot. The ledger apply is the only
// mutation gate: a duplicate (user, source type, source id) apply is a
// successful no-op that skips evaluation entirely, so retries cannot
// double-grant anything.
//
// Evaluation failures after a successful apply are logged and degrade to an
// empty grant list; the next action or the nightly sweep picks the grants
// up, because eligibility is detected lazily.
func (s *Service) RecordAction(
	ctx context.Context,
	userID uint,
	sourceType, sourceID string,
	statDeltas map[string]uint64,
	pointsDelta uint64,
) (*ActionResult, error) {
	snapshot, applied, err := s.stats.ApplyDelta(userID, sourceType, sourceID, statDeltas, pointsDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to apply reward: %w", err)
	}

	if !applied {
		prommetrics.RecordRewardEventDuplicate(sourceType)
		s.log.Debug().
			Uint("user_id", userID).
			Str("source_type", sourceType).
			Str("source_id", sourceID).
			Msg("Duplicate reward event, no-op")
		return &ActionResult{Snapshot: snapshot, Applied: false}, nil
	}
	prommetrics.RecordRewardEventApplied(sourceType)

	// Points are monotonic, so the pre-apply level is recoverable from the
	// new total without a second read.
	prevLevel := level.FromPoints(snapshot.Points - pointsDelta)
	if snapshot.Level > prevLevel {
		prommetrics.RecordLevelUp()
		s.announceLevelUp(userID, snapshot.Level)
	}

	result := &ActionResult{Snapshot: snapshot, Applied: true}

	triggerKeys := make(map[string]bool, len(statDeltas)+2)
	for key := range statDeltas {
		triggerKeys[key] = true
	}
	if pointsDelta > 0 {
		triggerKeys[models.StatPoints] = true
		triggerKeys[models.StatLevel] = true
	}

	taskResult, err := s.taskEngine.Evaluate(ctx, userID, triggerKeys)
	if err != nil {
		s.log.Error().Err(err).Uint("user_id", userID).Msg("Task evaluation failed")
	} else {
		result.NewTasks = taskResult.Completions
		result.NewBadges = taskResult.Badges
	}

	scanned, err := s.badgeEngine.Evaluate(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Uint("user_id", userID).Msg("Badge evaluation failed")
	} else {
		result.NewBadges = mergeBadges(result.NewBadges, scanned)
	}

	// Task and badge rewards may have moved the totals again; return the
	// settled snapshot.
	if len(result.NewTasks) > 0 || len(result.NewBadges) > 0 {
		fresh, err := s.stats.GetOrInit(userID)
		if err == nil {
			result.Snapshot = fresh
		}
	}

	s.cacheSnapshot(ctx, result.Snapshot)
	s.announceBadges(userID, result.NewBadges)

	return result, nil
}

// GetSnapshot returns the user's snapshot, read through the cache when one
// is configured. New users get the zero snapshot (points 0, level 1).
func (s *Service) GetSnapshot(ctx context.Context, userID uint) (*models.UserProgression, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSnapshot(ctx, userID)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", userID).Msg("Snapshot cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	snapshot, err := s.stats.GetOrInit(userID)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, snapshot)
	return snapshot, nil
}

// LeaderboardEntry is one row of the leaderboard projection.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Points      uint64 `json:"points"`
	Level       uint32 `json:"level"`
	BadgeCount  int    `json:"badge_count"`
}

// GetLeaderboard returns the top users sorted by points or level. The
// points ordering is served from the Redis sorted set when warm; any miss
// or error falls back to the store and rewarms the set.
func (s *Service) GetLeaderboard(ctx context.Context, limit int, sortKey string) ([]LeaderboardEntry, error) {
	snapshots, err := s.leaderboardSnapshots(ctx, limit, sortKey)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(snapshots))
	for i, snap := range snapshots {
		entry := LeaderboardEntry{
			Rank:   i + 1,
			UserID: snap.UserID,
			Points: snap.Points,
			Level:  snap.Level,
		}

		user, err := s.userRepo.GetByID(snap.UserID)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", snap.UserID).Msg("Failed to get leaderboard user")
		} else {
			entry.Username = user.Username
			entry.DisplayName = user.DisplayName
			entry.Role = user.Role
		}

		count, err := s.badgeRepo.GetUserBadgeCount(snap.UserID)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", snap.UserID).Msg("Failed to get badge count")
		} else {
			entry.BadgeCount = int(count)
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) leaderboardSnapshots(ctx context.Context, limit int, sortKey string) ([]models.UserProgression, error) {
	if s.cache != nil && (sortKey == repository.SortByPoints || sortKey == "") {
		ids, err := s.cache.TopUserIDs(ctx, limit)
		if err != nil {
			s.log.Warn().Err(err).Msg("Leaderboard cache read failed")
		} else if len(ids) > 0 {
			snapshots := make([]models.UserProgression, 0, len(ids))
			for _, id := range ids {
				snap, err := s.stats.GetOrInit(id)
				if err != nil {
					s.log.Warn().Err(err).Uint("user_id", id).Msg("Failed to load leaderboard snapshot")
					continue
				}
				snapshots = append(snapshots, *snap)
			}
			return snapshots, nil
		}
	}

	snapshots, err := s.stats.ListTop(limit, sortKey)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.RebuildLeaderboard(ctx, snapshots); err != nil {
			s.log.Warn().Err(err).Msg("Failed to rewarm leaderboard cache")
		}
	}
	return snapshots, nil
}

// GetUserTasks returns the user's visible tasks with completion status.
func (s *Service) GetUserTasks(ctx context.Context, userID uint) ([]tasks.UserTaskStatus, error) {
	return s.taskEngine.GetUserTasks(ctx, userID)
}

// GetBadgeCatalog returns every defined badge.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.BadgeDefinition, error) {
	return s.badgeEngine.GetBadgeCatalog(ctx)
}

// UserBadgeStatus pairs a badge definition with when it was earned, if ever.
type UserBadgeStatus struct {
	Badge    models.BadgeDefinition `json:"badge"`
	EarnedAt *time.Time             `json:"earned_at,omitempty"`
}

// GetUserBadges returns the full badge catalog with the user's earned state.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]UserBadgeStatus, error) {
	catalog, err := s.badgeEngine.GetBadgeCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get badge catalog: %w", err)
	}
	earned, err := s.badgeRepo.GetEarnedBadgeIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earned badges: %w", err)
	}

	statuses := make([]UserBadgeStatus, 0, len(catalog))
	for _, badge := range catalog {
		status := UserBadgeStatus{Badge: badge}
		if at, ok := earned[badge.ID]; ok {
			earnedAt := at
			status.EarnedAt = &earnedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// GetRewardHistory returns a user's ledger entries, newest first.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetRewardHistory(ctx context.Context, userID uint, limit int) ([]models.RewardEvent, error) {
	return s.stats.GetEventsByUser(userID, limit)
}

func (s *Service) cacheSnapshot(ctx context.Context, snapshot *models.UserProgression) {
	if s.cache == nil || snapshot == nil {
		return
	}
	if err := s.cache.PutSnapshot(ctx, snapshot, s.snapshotTTL); err != nil {
		s.log.Warn().Err(err).Uint("user_id", snapshot.UserID).Msg("Failed to cache snapshot")
	}
}

func (s *Service) announceLevelUp(userID uint, newLevel uint32) {
	if s.notifier == nil {
		return
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return
	}
	s.notifier.AnnounceLevelUp(user, newLevel)
}

func (s *Service) announceBadges(userID uint, grants []models.UserBadge) {
	if s.notifier == nil || len(grants) == 0 {
		return
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return
	}
	for i := range grants {
		s.notifier.AnnounceBadge(user, &grants[i].Badge)
	}
}

// mergeBadges appends scanned grants that were not already granted through a
// task reward in the same call.
func mergeBadges(existing, scanned []models.UserBadge) []models.UserBadge {
	seen := make(map[uint]bool, len(existing))
	for _, b := range existing {
		seen[b.BadgeID] = true
	}
	for _, b := range scanned {
		if !seen[b.BadgeID] {
			existing = append(existing, b)
		}
	}
	return existing
}
