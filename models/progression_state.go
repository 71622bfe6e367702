package models

import (
	"time"

	"gorm.io/gorm"
)

// CounterMap tracks lifetime action counts per action type.
type CounterMap map[ActionType]int64

// ProgressionState is a user's current XP/level snapshot (denormalized for
// performance). One row per user, created lazily on first action, mutated
// only inside the progression service's transaction.
type ProgressionState struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	// Core progression. TotalXP is monotonic non-decreasing; Level is always
	// derived from TotalXP via the level table.
	TotalXP        int64 `json:"total_xp" gorm:"default:0"`
	Level          int   `json:"level" gorm:"default:1"`
	CurrentLevelXP int64 `json:"current_level_xp" gorm:"default:0"`
	XPToNextLevel  int64 `json:"xp_to_next_level" gorm:"default:0"`

	Counters            CounterMap `json:"counters" gorm:"serializer:json"`
	CountersLastUpdated *time.Time `json:"counters_last_updated,omitempty"`
	LastActivityDate    *time.Time `json:"last_activity_date,omitempty"`
	LastLevelUpAt       *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
