package models

import "time"

// Notification is a row consumed by the notification delivery service.
// Writes are best-effort side effects and never block the webhook path.
type Notification struct {
	ID       string            `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string            `gorm:"index;not null" json:"user_id"`
	Type     string            `gorm:"type:varchar(32);not null" json:"type"` // level_up, badge_earned
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	Read     bool              `json:"read" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
