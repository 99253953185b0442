package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/roamly/progression-engine/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// Update updates a user.
func (r *UserRepository) Update(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// List retrieves all users, optionally filtered by role.
func (r *UserRepository) List(role string) ([]models.User, error) {
	query := r.db.Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetOrCreate looks a user up by username and provisions one with the given
// role when missing. A losing concurrent insert falls back to the winner's
// row.
func (r *UserRepository) GetOrCreate(username, role string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	if !models.IsValidRole(role) {
		role = models.RoleVisitor
	}
	created := &models.User{Username: username, Role: role}
	if err := r.db.Create(created).Error; err != nil {
		if IsUniqueViolation(err) {
			if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
				return nil, fmt.Errorf("failed to re-read user %s: %w", username, err)
			}
			return &user, nil
		}
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return created, nil
}
