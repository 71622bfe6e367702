package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"devxp-progression-system/models"
)

type EventType string

const (
	EventXPGained         EventType = "XP_GAINED"
	EventLevelUp          EventType = "LEVEL_UP"
	EventActivityRecorded EventType = "ACTIVITY_RECORDED"
	EventBadgeEarned      EventType = "BADGE_EARNED"
)

// RedisEventChannel is the pub/sub channel external services subscribe to.
const RedisEventChannel = "progression:events"

// ProgressionEvent is the outbound progression notification. Data holds one
// of the typed payloads below depending on Type.
type ProgressionEvent struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
}

type XPGainedData struct {
	ActionID   string            `json:"action_id,omitempty"`
	ActionType models.ActionType `json:"action_type"`
	XPGained   int64             `json:"xp_gained"`
	TotalXP    int64             `json:"total_xp"`
}

type LevelUpData struct {
	PreviousLevel int   `json:"previous_level"`
	NewLevel      int   `json:"new_level"`
	TotalXP       int64 `json:"total_xp"`
	XPToNextLevel int64 `json:"xp_to_next_level"`
}

type ActivityRecordedData struct {
	ActionID       string            `json:"action_id,omitempty"`
	ActionType     models.ActionType `json:"action_type"`
	Counter        int64             `json:"counter"` // lifetime counter after this action
	WeekendCounter int64             `json:"weekend_counter,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

type BadgeEarnedData struct {
	BadgeCode string `json:"badge_code"`
	BadgeName string `json:"badge_name"`
	Rarity    string `json:"rarity"`
	Trigger   string `json:"trigger"`
}

// Subscriber receives every published event in-process. Subscribers must be
// idempotent: the whole request may be retried by the sender.
type Subscriber func(evt ProgressionEvent)

// EventBus fans progression events out to in-process subscribers (badge
// engine, notification hooks) and best-effort publishes them to Redis for
// external consumers. Publish never fails the caller: a Redis outage is
// logged and swallowed.
type EventBus struct {
	rdb         *redis.Client // nil = in-process only
	subscribers []Subscriber
}

func NewEventBus(rdb *redis.Client) *EventBus {
	return &EventBus{rdb: rdb}
}

// Subscribe registers an in-process subscriber. Called only during startup
// wiring, before any Publish.
func (b *EventBus) Subscribe(fn Subscriber) {
	b.subscribers = append(b.subscribers, fn)
}

func (b *EventBus) Publish(evt ProgressionEvent) {
	for _, fn := range b.subscribers {
		fn(evt)
	}

	if b.rdb == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("❌ [EVENTS] Failed to marshal %s event for user %s: %v", evt.Type, evt.UserID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, RedisEventChannel, payload).Err(); err != nil {
		log.Printf("⚠️ [EVENTS] Redis publish of %s for user %s failed (dropped): %v", evt.Type, evt.UserID, err)
	}
}
