package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/service/level"
)

// Leaderboard sort keys accepted by ListTop.
const (
	SortByPoints = "points"
	SortByLevel  = "level"
)

// ProgressionRepository owns the reward event ledger and the per-user
// snapshot it aggregates into. All point and stat mutation in the system
// goes through ApplyDelta; nothing else writes user_progression.
type ProgressionRepository struct {
	db *DB
}

// NewProgressionRepository creates a new progression repository.
func NewProgressionRepository(db *DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// statColumns maps delta keys to their snapshot columns. Keys outside this
// map are rejected before any SQL is built.
var statColumns = map[string]string{
	models.StatMemoryCount:        "memory_count",
	models.StatReplyCount:         "reply_count",
	models.StatTaskCompletedCount: "task_completed_count",
	models.StatVisitCount:         "visit_count",
}

// ApplyDelta records a reward event and folds it into the user's snapshot in
// a single transaction. The ledger insert goes first: if it collides with
// the (user, source type, source id) unique index the transaction rolls back
// and the current snapshot is returned with applied=false, which makes
// retried and concurrent applies safe no-ops.
//
// Counter increments and the level recomputation run as SQL expressions
// against the stored row, so concurrent applies for the same user cannot
// lose updates even without row locks.
func (r *ProgressionRepository) ApplyDelta(
	userID uint,
	sourceType, sourceID string,
	statDeltas map[string]uint64,
	pointsDelta uint64,
) (*models.UserProgression, bool, error) {
	if !models.IsValidSourceType(sourceType) {
		return nil, false, fmt.Errorf("unknown source type %q", sourceType)
	}
	for key := range statDeltas {
		if _, ok := statColumns[key]; !ok {
			return nil, false, fmt.Errorf("unknown stat key %q in delta", key)
		}
	}

	deltasJSON, err := json.Marshal(statDeltas)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode stat deltas: %w", err)
	}

	var snapshot models.UserProgression
	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		event := &models.RewardEvent{
			UserID:      userID,
			SourceType:  sourceType,
			SourceID:    sourceID,
			PointsDelta: pointsDelta,
			StatDeltas:  deltasJSON,
			AppliedAt:   time.Now(),
		}
		if err := tx.Create(event).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert reward event: %w", err)
		}

		if err := ensureSnapshot(tx, userID); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"points":     gorm.Expr("points + ?", pointsDelta),
			"level":      gorm.Expr(fmt.Sprintf("(points + ?) / %d + 1", level.PointsPerLevel), pointsDelta),
			"updated_at": time.Now(),
		}
		for key, delta := range statDeltas {
			col := statColumns[key]
			updates[col] = gorm.Expr(col+" + ?", delta)
		}
		if err := tx.Model(&models.UserProgression{}).
			Where("user_id = ?", userID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update snapshot: %w", err)
		}

		if err := tx.First(&snapshot, "user_id = ?", userID).Error; err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		return nil
	})

	if errors.Is(txErr, ErrDuplicate) {
		// Same event already applied. Re-read outside the aborted
		// transaction and report a no-op.
		current, err := r.GetOrInit(userID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if txErr != nil {
		return nil, false, txErr
	}
	return &snapshot, true, nil
}

// ensureSnapshot creates the zero-valued snapshot row if it does not exist.
// A concurrent creator winning the insert is fine; the caller increments the
// row afterwards either way.
func ensureSnapshot(tx *gorm.DB, userID uint) error {
	var existing models.UserProgression
	err := tx.First(&existing, "user_id = ?", userID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up snapshot: %w", err)
	}

	row := &models.UserProgression{UserID: userID, Level: 1}
	if err := tx.Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to initialize snapshot: %w", err)
	}
	return nil
}

// GetOrInit returns the user's snapshot, creating the zero-valued row
// (points 0, level 1) on first read so new users always have a well-defined
// snapshot.
func (r *ProgressionRepository) GetOrInit(userID uint) (*models.UserProgression, error) {
	var snapshot models.UserProgression
	err := r.db.First(&snapshot, "user_id = ?", userID).Error
	if err == nil {
		return &snapshot, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get snapshot for user %d: %w", userID, err)
	}

	row := &models.UserProgression{UserID: userID, Level: 1}
	if err := r.db.Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			// Lost the race against a concurrent initializer.
			if err := r.db.First(&snapshot, "user_id = ?", userID).Error; err != nil {
				return nil, fmt.Errorf("failed to re-read snapshot for user %d: %w", userID, err)
			}
			return &snapshot, nil
		}
		return nil, fmt.Errorf("failed to initialize snapshot for user %d: %w", userID, err)
	}
	return row, nil
}

// ListTop returns the top snapshots ordered by the given sort key.
func (r *ProgressionRepository) ListTop(limit int, sortKey string) ([]models.UserProgression, error) {
	order := "points DESC"
	switch sortKey {
	case SortByPoints, "":
	case SortByLevel:
		order = "level DESC, points DESC"
	default:
		return nil, fmt.Errorf("unknown leaderboard sort key %q", sortKey)
	}

	query := r.db.Model(&models.UserProgression{}).Order(order)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var snapshots []models.UserProgression
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	return snapshots, nil
}

// GetEventsByUser returns a user's reward history, newest first.
func (r *ProgressionRepository) GetEventsByUser(userID uint, limit int) ([]models.RewardEvent, error) {
	query := r.db.
		Where("user_id = ?", userID).
		Order("applied_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.RewardEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list reward events: %w", err)
	}
	return events, nil
}

// CountEvents returns the total number of ledger rows for a user.
func (r *ProgressionRepository) CountEvents(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.RewardEvent{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
