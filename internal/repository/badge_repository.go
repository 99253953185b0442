package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/roamly/progression-engine/internal/models"
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// CreateDefinition creates a new badge definition.
func (r *BadgeRepository) CreateDefinition(badge *models.BadgeDefinition) error {
	return r.db.Create(badge).Error
}

// GetDefinitionByID retrieves a badge definition by its ID.
func (r *BadgeRepository) GetDefinitionByID(id uint) (*models.BadgeDefinition, error) {
	var badge models.BadgeDefinition
	if err := r.db.First(&badge, id).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

// GetDefinitionByName retrieves a badge definition by its unique name.
func (r *BadgeRepository) GetDefinitionByName(name string) (*models.BadgeDefinition, error) {
	var badge models.BadgeDefinition
	if err := r.db.Where("name = ?", name).First(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

// UpsertDefinition creates a badge definition or updates the existing one
// with the same name.
func (r *BadgeRepository) UpsertDefinition(badge *models.BadgeDefinition) error {
	var existing models.BadgeDefinition
	err := r.db.Where("name = ?", badge.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(badge).Error
	}
	if err != nil {
		return err
	}
	badge.ID = existing.ID
	badge.CreatedAt = existing.CreatedAt
	return r.db.Save(badge).Error
}

// ListDefinitions retrieves all badge definitions.
func (r *BadgeRepository) ListDefinitions() ([]models.BadgeDefinition, error) {
	var badges []models.BadgeDefinition
	err := r.db.Order("id ASC").Find(&badges).Error
	return badges, err
}

// HasEarned checks whether a user has already earned a badge.
func (r *BadgeRepository) HasEarned(userID, badgeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUserBadge inserts the write-once grant row for (user, badge).
// Returns ErrDuplicate when the badge is already held; a losing concurrent
// grant observes the constraint violation instead of creating a second row.
func (r *BadgeRepository) CreateUserBadge(userID, badgeID uint) (*models.UserBadge, error) {
	grant := &models.UserBadge{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: time.Now(),
	}
	if err := r.db.Create(grant).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to record badge grant: %w", err)
	}
	return grant, nil
}

// GetUserBadges retrieves all badges earned by a user with badge details
// preloaded, newest first.
func (r *BadgeRepository) GetUserBadges(userID uint) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// GetEarnedBadgeIDs returns earned badge IDs with their earned timestamps.
func (r *BadgeRepository) GetEarnedBadgeIDs(userID uint) (map[uint]time.Time, error) {
	var grants []models.UserBadge
	err := r.db.
		Select("badge_id", "earned_at").
		Where("user_id = ?", userID).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	earned := make(map[uint]time.Time, len(grants))
	for _, g := range grants {
		earned[g.BadgeID] = g.EarnedAt
	}
	return earned, nil
}

// GetBadgeHoldersCount returns the number of users holding a badge.
func (r *BadgeRepository) GetBadgeHoldersCount(badgeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	return count, err
}

// GetUserBadgeCount returns the total number of badges a user has earned.
func (r *BadgeRepository) GetUserBadgeCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
