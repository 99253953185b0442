package repository

import (
	"fmt"

	"github.com/roamly/progression-engine/internal/models"
)

// ContentRepository handles memory capsule and reply database operations.
type ContentRepository struct {
	db *DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// CreateCapsule creates a new memory capsule.
func (r *ContentRepository) CreateCapsule(capsule *models.MemoryCapsule) error {
	if err := r.db.Create(capsule).Error; err != nil {
		return fmt.Errorf("failed to create memory capsule: %w", err)
	}
	return nil
}

// GetCapsuleByID retrieves a memory capsule by ID.
func (r *ContentRepository) GetCapsuleByID(id uint) (*models.MemoryCapsule, error) {
	var capsule models.MemoryCapsule
	if err := r.db.First(&capsule, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get memory capsule %d: %w", id, err)
	}
	return &capsule, nil
}

// ListCapsulesByUser retrieves a user's memory capsules, newest first.
func (r *ContentRepository) ListCapsulesByUser(userID uint, limit int) ([]models.MemoryCapsule, error) {
	query := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var capsules []models.MemoryCapsule
	if err := query.Find(&capsules).Error; err != nil {
		return nil, fmt.Errorf("failed to list memory capsules: %w", err)
	}
	return capsules, nil
}

// CreateReply creates a new reply.
func (r *ContentRepository) CreateReply(reply *models.Reply) error {
	if err := r.db.Create(reply).Error; err != nil {
		return fmt.Errorf("failed to create reply: %w", err)
	}
	return nil
}

// ListRepliesByCapsule retrieves the replies on a capsule, oldest first.
func (r *ContentRepository) ListRepliesByCapsule(capsuleID uint) ([]models.Reply, error) {
	var replies []models.Reply
	err := r.db.
		Where("capsule_id = ?", capsuleID).
		Order("created_at ASC").
		Find(&replies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	return replies, nil
}
