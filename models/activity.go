package models

import (
	"fmt"
	"time"
)

const (
	ActivityGameAction  = "game_action"
	ActivityLevelUp     = "level_up"
	ActivityBadgeEarned = "badge_earned"
)

// GameActionActivityPayload records one rewarded action in the feed.
type GameActionActivityPayload struct {
	ActionID    string           `json:"action_id"`
	ActionType  ActionType       `json:"action_type"`
	Context     ActionContext    `json:"context"`
	Metrics     ActionMetrics    `json:"metrics"`
	XPEarned    int64            `json:"xp_earned"`
	XPBreakdown map[string]int64 `json:"xp_breakdown,omitempty"` // label → bonus amount (excludes base)
}

type LevelUpActivityPayload struct {
	PreviousLevel int   `json:"previous_level"`
	NewLevel      int   `json:"new_level"`
	TotalXP       int64 `json:"total_xp"`
	XPToNextLevel int64 `json:"xp_to_next_level"`
}

type BadgeEarnedActivityPayload struct {
	BadgeCode string `json:"badge_code"`
	BadgeName string `json:"badge_name"`
	Rarity    string `json:"rarity"`
	Trigger   string `json:"trigger"`
}

// ActivityPayload is the per-type payload of a feed entry; exactly one of
// the fields is set, matching Activity.Type.
type ActivityPayload struct {
	Action  *GameActionActivityPayload  `json:"action,omitempty"`
	LevelUp *LevelUpActivityPayload     `json:"level_up,omitempty"`
	Badge   *BadgeEarnedActivityPayload `json:"badge,omitempty"`
}

// Activity is an append-only feed entry. The primary key is deterministic
// (derived from stable inputs) so duplicate deliveries insert at most once.
type Activity struct {
	ID        string          `gorm:"primaryKey;type:varchar(128)" json:"id"`
	UserID    string          `gorm:"index;not null" json:"user_id"`
	Type      string          `gorm:"type:varchar(24);index;not null" json:"type"`
	Payload   ActivityPayload `gorm:"serializer:json" json:"payload"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// Deterministic feed-entry ids. These are idempotency keys: the same logical
// event always maps to the same primary key.

func GameActionActivityID(actionID string) string {
	return "action_" + actionID
}

func LevelUpActivityID(userID string, level int) string {
	return fmt.Sprintf("levelup_%s_%d", userID, level)
}

func BadgeActivityID(userID, badgeCode string) string {
	return fmt.Sprintf("badge_%s_%s", userID, badgeCode)
}
