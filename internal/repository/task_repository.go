package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/roamly/progression-engine/internal/models"
)

// TaskRepository handles task definition and completion database operations.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateDefinition creates a new task definition.
func (r *TaskRepository) CreateDefinition(task *models.TaskDefinition) error {
	return r.db.Create(task).Error
}

// GetDefinitionByID retrieves a task definition by its ID.
func (r *TaskRepository) GetDefinitionByID(id uint) (*models.TaskDefinition, error) {
	var task models.TaskDefinition
	if err := r.db.First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// GetDefinitionByName retrieves a task definition by its unique name.
func (r *TaskRepository) GetDefinitionByName(name string) (*models.TaskDefinition, error) {
	var task models.TaskDefinition
	if err := r.db.Where("name = ?", name).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// UpsertDefinition creates a task definition or updates the existing one
// with the same name. Used by the catalog seeder so restarts converge on the
// seed file without duplicating rows.
func (r *TaskRepository) UpsertDefinition(task *models.TaskDefinition) error {
	var existing models.TaskDefinition
	err := r.db.Where("name = ?", task.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(task).Error
	}
	if err != nil {
		return err
	}
	task.ID = existing.ID
	task.CreatedAt = existing.CreatedAt
	return r.db.Save(task).Error
}

// ListActiveForRole retrieves active task definitions targeting the given
// role, including wildcard tasks.
func (r *TaskRepository) ListActiveForRole(role string) ([]models.TaskDefinition, error) {
	var tasks []models.TaskDefinition
	err := r.db.
		Where("is_active = ?", true).
		Where("target_role = ? OR target_role = ?", role, models.RoleAll).
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListDefinitions retrieves all task definitions.
func (r *TaskRepository) ListDefinitions() ([]models.TaskDefinition, error) {
	var tasks []models.TaskDefinition
	err := r.db.Order("id ASC").Find(&tasks).Error
	return tasks, err
}

// HasCompleted checks whether a user has already completed a task.
func (r *TaskRepository) HasCompleted(userID, taskID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.TaskCompletion{}).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateCompletion inserts the write-once completion row for (user, task).
// Returns ErrDuplicate when the row already exists, which a concurrent
// evaluator treats as "another evaluation already won".
func (r *TaskRepository) CreateCompletion(userID, taskID uint) (*models.TaskCompletion, error) {
	completion := &models.TaskCompletion{
		UserID:      userID,
		TaskID:      taskID,
		CompletedAt: time.Now(),
	}
	if err := r.db.Create(completion).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to record task completion: %w", err)
	}
	return completion, nil
}

// GetCompletionsByUser retrieves a user's task completions with task details
// preloaded, newest first.
func (r *TaskRepository) GetCompletionsByUser(userID uint) ([]models.TaskCompletion, error) {
	var completions []models.TaskCompletion
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Task").
		Order("completed_at DESC").
		Find(&completions).Error
	return completions, err
}

// GetCompletedTaskIDs returns the set of task IDs a user has completed.
func (r *TaskRepository) GetCompletedTaskIDs(userID uint) (map[uint]bool, error) {
	var completions []models.TaskCompletion
	err := r.db.
		Select("task_id").
		Where("user_id = ?", userID).
		Find(&completions).Error
	if err != nil {
		return nil, err
	}
	ids := make(map[uint]bool, len(completions))
	for _, c := range completions {
		ids[c.TaskID] = true
	}
	return ids, nil
}
