package models

import (
	"encoding/json"
	"time"
)

// TaskDefinition describes a task users can complete for points and,
// optionally, a directly awarded badge.
type TaskDefinition struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Name          string           `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description   string           `gorm:"type:text" json:"description"`
	Requirements  json.RawMessage  `gorm:"type:jsonb;not null" json:"requirements"` // stat key -> minimum threshold
	PointsReward  uint64           `gorm:"not null;default:0" json:"points_reward"`
	BadgeRewardID *uint            `gorm:"index" json:"badge_reward_id,omitempty"`
	BadgeReward   *BadgeDefinition `gorm:"foreignKey:BadgeRewardID" json:"badge_reward,omitempty"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	TargetRole    string           `gorm:"size:50;not null;default:all" json:"target_role"` // 'visitor', 'merchant', 'local' or 'all'
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName specifies the table name for TaskDefinition model.
func (TaskDefinition) TableName() string {
	return "task_definitions"
}

// AppliesToRole reports whether the task targets the given user role.
func (t *TaskDefinition) AppliesToRole(role string) bool {
	return t.TargetRole == RoleAll || t.TargetRole == role
}

// TaskCompletion records that a user completed a task. Rows are write-once:
// the unique (user, task) index guarantees at most one completion ever, even
// under concurrent evaluation.
type TaskCompletion struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:ux_task_completions_user_task,priority:1" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TaskID      uint           `gorm:"not null;uniqueIndex:ux_task_completions_user_task,priority:2" json:"task_id"`
	Task        TaskDefinition `gorm:"foreignKey:TaskID" json:"task,omitempty"`
	CompletedAt time.Time      `gorm:"not null" json:"completed_at"`
}

// TableName specifies the table name for TaskCompletion model.
func (TaskCompletion) TableName() string {
	return "task_completions"
}
