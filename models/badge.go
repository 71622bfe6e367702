package models

import (
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type BadgeCategory string

const (
	BadgeCategoryLevel     BadgeCategory = "level"
	BadgeCategoryMilestone BadgeCategory = "milestone"
	BadgeCategorySpecial   BadgeCategory = "special"
)

// Special-badge rule keys, evaluated by the badge engine.
const (
	BadgeRuleNightOwl       = "night_owl"        // any action before 06:00 UTC
	BadgeRuleMidnightMerger = "midnight_merger"  // a PR merge between 00:00 and 06:00 UTC
	BadgeRuleWeekendWarrior = "weekend_warrior"  // weekend_activity weekly counter hits Threshold
)

// BadgeType is a static catalog entry. The catalog is process-wide read-only
// configuration; rows are seeded into the DB at startup (upsert by code) so
// the read API can join grants against them.
type BadgeType struct {
	ID          string        `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string        `gorm:"uniqueIndex;not null" json:"code"`
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description"`
	IconURL     string        `gorm:"type:text" json:"icon_url"`
	Rarity      string        `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	Category    BadgeCategory `gorm:"type:varchar(16);not null" json:"category"`

	// Trigger metadata — which field matters depends on Category.
	Level      int        `json:"level,omitempty"`       // level badges
	ActionType ActionType `json:"action_type,omitempty"` // milestone badges
	Threshold  int64      `json:"threshold,omitempty"`   // milestone/special badges
	Rule       string     `json:"rule,omitempty"`        // special badges

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// UserBadge is the one-time grant record. The unique (user_id, badge_code)
// index enforces at most one grant per user and badge; concurrent grant
// attempts collapse via create-if-absent.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index:idx_user_badge,unique;not null" json:"user_id"`
	BadgeCode string    `gorm:"index:idx_user_badge,unique;not null" json:"badge_code"`
	Trigger   string    `json:"trigger,omitempty"` // e.g. "level_3", "code_push=10"
	AwardedAt time.Time `json:"awarded_at" gorm:"autoCreateTime"`
}

// MilestoneThresholds are the exact counter values that earn a milestone
// badge. The engine checks equality, not ≥, so every badge fires once.
var MilestoneThresholds = []int64{1, 10, 25, 50, 100}

// milestoneTracks maps the action types with milestone ladders to the short
// code prefix used in badge codes (e.g. code_push ×10 → "push_10").
var milestoneTracks = []struct {
	Type   ActionType
	Prefix string
	Label  string
}{
	{ActionCodePush, "push", "pusher"},
	{ActionPullRequestMerge, "merge", "merger"},
	{ActionCodeReviewSubmit, "review", "reviewer"},
	{ActionIssueClose, "issue", "issue closer"},
}

// MilestoneBadgeCode returns the catalog code for a milestone trigger, or ""
// when the action type has no milestone track.
func MilestoneBadgeCode(t ActionType, count int64) string {
	for _, track := range milestoneTracks {
		if track.Type == t {
			return fmt.Sprintf("%s_%d", track.Prefix, count)
		}
	}
	return ""
}

// BadgeCatalog is the full static catalog, built once at package init.
var BadgeCatalog = buildBadgeCatalog()

// CatalogByCode indexes the catalog for trigger lookups.
var CatalogByCode = func() map[string]BadgeType {
	m := make(map[string]BadgeType, len(BadgeCatalog))
	for _, b := range BadgeCatalog {
		m[b.Code] = b
	}
	return m
}()

// LevelBadgeCodes returns all catalog badges granted at exactly this level.
func LevelBadgeCodes(level int) []string {
	var codes []string
	for _, b := range BadgeCatalog {
		if b.Category == BadgeCategoryLevel && b.Level == level {
			codes = append(codes, b.Code)
		}
	}
	return codes
}

var titleCaser = cases.Title(language.English)

func badgeIconURL(name string) string {
	return "badges/" + slug.Make(name) + ".svg"
}

func buildBadgeCatalog() []BadgeType {
	var catalog []BadgeType

	// Level badges — granted on crossing the named level.
	levelBadges := []struct {
		Level  int
		Name   string
		Rarity string
	}{
		{2, "Apprentice", "common"},
		{3, "Contributor", "common"},
		{5, "Committed", "rare"},
		{10, "Veteran", "rare"},
		{15, "Expert", "epic"},
		{20, "Living Legend", "legendary"},
	}
	for _, lb := range levelBadges {
		catalog = append(catalog, BadgeType{
			Code:        fmt.Sprintf("level_%d", lb.Level),
			Name:        lb.Name,
			Description: fmt.Sprintf("Reached level %d", lb.Level),
			IconURL:     badgeIconURL(lb.Name),
			Rarity:      lb.Rarity,
			Category:    BadgeCategoryLevel,
			Level:       lb.Level,
		})
	}

	// Milestone badges — one per (track, threshold).
	for _, track := range milestoneTracks {
		for _, n := range MilestoneThresholds {
			rarity := "common"
			switch {
			case n >= 100:
				rarity = "legendary"
			case n >= 50:
				rarity = "epic"
			case n >= 25:
				rarity = "rare"
			}
			name := titleCaser.String(fmt.Sprintf("%s ×%d", track.Label, n))
			if n == 1 {
				name = titleCaser.String("first " + track.Label)
			}
			catalog = append(catalog, BadgeType{
				Code:        fmt.Sprintf("%s_%d", track.Prefix, n),
				Name:        name,
				Description: fmt.Sprintf("Recorded %d %s actions", n, track.Type),
				IconURL:     badgeIconURL(name),
				Rarity:      rarity,
				Category:    BadgeCategoryMilestone,
				ActionType:  track.Type,
				Threshold:   n,
			})
		}
	}

	// Special badges — time/pattern triggers.
	catalog = append(catalog,
		BadgeType{
			Code:        BadgeRuleNightOwl,
			Name:        "Night Owl",
			Description: "Recorded activity before 6 AM",
			IconURL:     badgeIconURL("Night Owl"),
			Rarity:      "rare",
			Category:    BadgeCategorySpecial,
			Rule:        BadgeRuleNightOwl,
		},
		BadgeType{
			Code:        BadgeRuleMidnightMerger,
			Name:        "Midnight Merger",
			Description: "Merged a pull request between midnight and 6 AM",
			IconURL:     badgeIconURL("Midnight Merger"),
			Rarity:      "epic",
			Category:    BadgeCategorySpecial,
			Rule:        BadgeRuleMidnightMerger,
		},
		BadgeType{
			Code:        BadgeRuleWeekendWarrior,
			Name:        "Weekend Warrior",
			Description: "Ten actions in a single weekend",
			IconURL:     badgeIconURL("Weekend Warrior"),
			Rarity:      "rare",
			Category:    BadgeCategorySpecial,
			Rule:        BadgeRuleWeekendWarrior,
			Threshold:   10,
		},
	)

	return catalog
}
