package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stat counter keys. This is the closed vocabulary that reward deltas and
// task/badge requirements are validated against.
const (
	StatMemoryCount        = "memory_count"
	StatReplyCount         = "reply_count"
	StatTaskCompletedCount = "task_completed_count"
	StatVisitCount         = "visit_count"

	// Derived keys, valid in requirements but not as deltas.
	StatPoints = "points"
	StatLevel  = "level"
)

// Reward event source types. Together with the user ID and source ID they
// form the idempotency key of the ledger.
const (
	SourceMemoryCreated = "memory_created"
	SourceReplyCreated  = "reply_created"
	SourceTaskCompleted = "task_completed"
	SourceBadgeAwarded  = "badge_awarded"
)

// IsValidSourceType reports whether sourceType is a known reward source.
func IsValidSourceType(sourceType string) bool {
	switch sourceType {
	case SourceMemoryCreated, SourceReplyCreated, SourceTaskCompleted, SourceBadgeAwarded:
		return true
	}
	return false
}

// IsCounterStat reports whether key names a mutable stat counter column.
func IsCounterStat(key string) bool {
	switch key {
	case StatMemoryCount, StatReplyCount, StatTaskCompletedCount, StatVisitCount:
		return true
	}
	return false
}

// IsRequirementStat reports whether key may appear in a task or badge
// requirement map. Covers the counters plus the derived points/level values.
func IsRequirementStat(key string) bool {
	return IsCounterStat(key) || key == StatPoints || key == StatLevel
}

// UserProgression is the aggregated per-user snapshot derived from the
// reward event ledger. It is mutated only inside the same transaction as a
// ledger insert; the ledger stays authoritative.
type UserProgression struct {
	UserID             uint      `gorm:"primaryKey" json:"user_id"`
	Points             uint64    `gorm:"not null;default:0" json:"points"`
	Level              uint32    `gorm:"not null;default:1" json:"level"`
	MemoryCount        uint64    `gorm:"not null;default:0" json:"memory_count"`
	ReplyCount         uint64    `gorm:"not null;default:0" json:"reply_count"`
	TaskCompletedCount uint64    `gorm:"not null;default:0" json:"task_completed_count"`
	VisitCount         uint64    `gorm:"not null;default:0" json:"visit_count"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserProgression model.
func (UserProgression) TableName() string {
	return "user_progression"
}

// Stats returns the snapshot as a flat map, including the derived points and
// level values, in the shape the requirement evaluator consumes.
func (p *UserProgression) Stats() map[string]uint64 {
	return map[string]uint64{
		StatMemoryCount:        p.MemoryCount,
		StatReplyCount:         p.ReplyCount,
		StatTaskCompletedCount: p.TaskCompletedCount,
		StatVisitCount:         p.VisitCount,
		StatPoints:             p.Points,
		StatLevel:              uint64(p.Level),
	}
}

// RewardEvent is one row of the append-only reward ledger. Rows are never
// updated or deleted. The composite unique index is the idempotency key:
// inserting the same (user, source type, source id) twice fails, which turns
// a retried apply into a no-op.
type RewardEvent struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;uniqueIndex:ux_reward_events_source,priority:1" json:"user_id"`
	SourceType  string          `gorm:"size:50;not null;uniqueIndex:ux_reward_events_source,priority:2" json:"source_type"`
	SourceID    string          `gorm:"size:255;not null;uniqueIndex:ux_reward_events_source,priority:3" json:"source_id"`
	PointsDelta uint64          `gorm:"not null;default:0" json:"points_delta"`
	StatDeltas  json.RawMessage `gorm:"type:jsonb" json:"stat_deltas"`
	AppliedAt   time.Time       `gorm:"not null" json:"applied_at"`
}

// TableName specifies the table name for RewardEvent model.
func (RewardEvent) TableName() string {
	return "reward_events"
}

// ParseRequirements decodes a requirements JSON document into a threshold
// map. Thresholds must be non-negative integers; anything else is an error
// so that a malformed definition can be skipped rather than partially
// evaluated.
func ParseRequirements(raw json.RawMessage) (map[string]uint64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("requirements document is empty")
	}
	var thresholds map[string]uint64
	if err := json.Unmarshal(raw, &thresholds); err != nil {
		return nil, fmt.Errorf("failed to parse requirements: %w", err)
	}
	return thresholds, nil
}
