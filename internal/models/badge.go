package models

import (
	"encoding/json"
	"time"
)

// BadgeDefinition describes a badge users can earn, either through stat
// thresholds or as a direct task reward.
type BadgeDefinition struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Icon         string          `gorm:"size:50" json:"icon"`
	Requirements json.RawMessage `gorm:"type:jsonb;not null" json:"requirements"` // stat key -> minimum threshold
	PointsReward uint64          `gorm:"not null;default:0" json:"points_reward"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for BadgeDefinition model.
func (BadgeDefinition) TableName() string {
	return "badge_definitions"
}

// UserBadge records a badge earned by a user. Write-once per (user, badge);
// the unique index makes concurrent grants collapse to a single row.
type UserBadge struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	UserID   uint            `gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:1" json:"user_id"`
	User     User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BadgeID  uint            `gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:2" json:"badge_id"`
	Badge    BadgeDefinition `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time       `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
