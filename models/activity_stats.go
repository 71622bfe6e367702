package models

import (
	"fmt"
	"time"
)

const (
	GranularityDaily  = "daily"
	GranularityWeekly = "weekly"
)

// StatWeekendActivity is a synthetic counter type tracked in the weekly
// bucket alongside the real action types; it backs the weekend badge rule.
const StatWeekendActivity ActionType = "weekend_activity"

// ActivityStat is one counter row of a time bucket: (user, granularity,
// timeframe, action type) → count + xp. TimeframeID is `YYYY-MM-DD` for
// daily and `YYYY-Www` (ISO week) for weekly. Rows are created on first
// activity in the bucket and only ever updated via targeted increments, so
// concurrent writers on the same bucket never lose updates.
type ActivityStat struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"index:idx_stat_bucket,unique;not null" json:"user_id"`
	Granularity string     `gorm:"index:idx_stat_bucket,unique;type:varchar(8);not null" json:"granularity"`
	TimeframeID string     `gorm:"index:idx_stat_bucket,unique;type:varchar(12);not null" json:"timeframe_id"`
	ActionType  ActionType `gorm:"index:idx_stat_bucket,unique;type:varchar(40);not null" json:"action_type"`

	Count        int64     `json:"count" gorm:"default:0"`
	XPGained     int64     `json:"xp_gained" gorm:"default:0"`
	LastActivity time.Time `json:"last_activity"`
}

// DailyTimeframeID formats t (UTC) as the daily bucket key.
func DailyTimeframeID(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeeklyTimeframeID formats t (UTC) as the ISO-week bucket key, e.g. 2026-W35.
// The week number is zero-padded so bucket keys sort lexicographically.
func WeeklyTimeframeID(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
