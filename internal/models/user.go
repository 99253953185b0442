// Package models defines domain models for the tourism progression engine.
package models

import (
	"time"
)

// User roles used for task targeting.
const (
	RoleVisitor  = "visitor"
	RoleMerchant = "merchant"
	RoleLocal    = "local"
	RoleAll      = "all" // wildcard, valid only on task definitions
)

// User represents an application user known to the progression engine.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	Role        string    `gorm:"size:50;not null;default:visitor" json:"role"` // 'visitor', 'merchant' or 'local'
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// IsValidRole reports whether role is one of the concrete user roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleVisitor, RoleMerchant, RoleLocal:
		return true
	}
	return false
}

// IsValidTargetRole reports whether role is valid as a task target,
// which additionally allows the 'all' wildcard.
func IsValidTargetRole(role string) bool {
	return role == RoleAll || IsValidRole(role)
}
