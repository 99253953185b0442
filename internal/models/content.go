package models

import (
	"time"
)

// MemoryCapsule is a user-created memory attached to a place. Creating one
// is the trigger for exactly one reward event.
type MemoryCapsule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Location  string    `gorm:"size:255" json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for MemoryCapsule model.
func (MemoryCapsule) TableName() string {
	return "memory_capsules"
}

// Reply is a user reply to a memory capsule; like capsule creation it
// triggers exactly one reward event.
type Reply struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	User      User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CapsuleID uint          `gorm:"not null;index" json:"capsule_id"`
	Capsule   MemoryCapsule `gorm:"foreignKey:CapsuleID" json:"capsule,omitempty"`
	Body      string        `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time     `json:"created_at"`
}

// TableName specifies the table name for Reply model.
func (Reply) TableName() string {
	return "replies"
}
