package models

import "time"

// WebhookEvent is the dedup record for one external delivery. The unique
// (provider, event_id) index is the exactly-once guarantee: at-least-once
// webhook delivery collapses to a single processed event.
type WebhookEvent struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	Provider   string    `gorm:"index:idx_webhook_dedup,unique;not null" json:"provider"`
	EventID    string    `gorm:"index:idx_webhook_dedup,unique;not null" json:"event_id"`
	EventType  string    `json:"event_type"`
	ActionID   string    `json:"action_id,omitempty"` // GameAction produced by this delivery, if any
	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
}
