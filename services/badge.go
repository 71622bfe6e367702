package services

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"devxp-progression-system/models"
)

// BadgeService reacts to progression events and grants catalog badges. It is
// never called from inside the state store's transaction — grants are their
// own commits, and their side effects run only after the grant lands.
type BadgeService struct {
	DB       *gorm.DB
	Bus      *EventBus
	Notifier *NotificationService
}

func NewBadgeService(db *gorm.DB, bus *EventBus, notifier *NotificationService) *BadgeService {
	return &BadgeService{DB: db, Bus: bus, Notifier: notifier}
}

// SeedCatalog upserts the static badge catalog into the DB so the read API
// can join grants against it. Idempotent across restarts.
func (s *BadgeService) SeedCatalog() error {
	for _, badge := range models.BadgeCatalog {
		badge.ID = uuid.NewString()
		err := s.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "icon_url", "rarity", "category",
				"level", "action_type", "threshold", "rule",
			}),
		}).Create(&badge).Error
		if err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", badge.Code, err)
		}
	}
	log.Printf("🎖️ Badge catalog seeded (%d badges)", len(models.BadgeCatalog))
	return nil
}

// HandleEvent is the bus subscriber. Failures here are logged and swallowed:
// badge grants are idempotent, and the sender's retry (or the next
// qualifying event) will converge.
func (s *BadgeService) HandleEvent(evt ProgressionEvent) {
	switch evt.Type {
	case EventLevelUp:
		data, ok := evt.Data.(LevelUpData)
		if !ok {
			return
		}
		s.checkLevelBadges(evt.UserID, data)
	case EventActivityRecorded:
		data, ok := evt.Data.(ActivityRecordedData)
		if !ok {
			return
		}
		s.checkMilestoneBadges(evt.UserID, data)
		s.checkSpecialBadges(evt.UserID, data)
	}
}

// checkLevelBadges grants the configured badge for every level strictly
// between the previous and new level, inclusive of the new one — a single
// large XP grant can cross several thresholds at once.
func (s *BadgeService) checkLevelBadges(userID string, data LevelUpData) {
	for lvl := data.PreviousLevel + 1; lvl <= data.NewLevel; lvl++ {
		for _, code := range models.LevelBadgeCodes(lvl) {
			if _, err := s.GrantBadge(userID, code, fmt.Sprintf("level_%d", lvl)); err != nil {
				log.Printf("❌ [BADGES] Level badge %s for user %s failed: %v", code, userID, err)
			}
		}
	}
}

// checkMilestoneBadges grants a milestone badge only when the counter
// exactly equals a threshold — ≥ would re-grant on every later action.
func (s *BadgeService) checkMilestoneBadges(userID string, data ActivityRecordedData) {
	for _, threshold := range models.MilestoneThresholds {
		if data.Counter != threshold {
			continue
		}
		code := models.MilestoneBadgeCode(data.ActionType, threshold)
		if code == "" {
			return // no milestone track for this action type
		}
		trigger := fmt.Sprintf("%s=%d", data.ActionType, threshold)
		if _, err := s.GrantBadge(userID, code, trigger); err != nil {
			log.Printf("❌ [BADGES] Milestone badge %s for user %s failed: %v", code, userID, err)
		}
		return
	}
}

func (s *BadgeService) checkSpecialBadges(userID string, data ActivityRecordedData) {
	if data.ActionID == "" {
		return // manual grants carry no provider timestamp
	}
	hour := data.OccurredAt.UTC().Hour()
	if hour < 6 {
		if _, err := s.GrantBadge(userID, models.BadgeRuleNightOwl, fmt.Sprintf("hour=%d", hour)); err != nil {
			log.Printf("❌ [BADGES] night_owl for user %s failed: %v", userID, err)
		}
		if data.ActionType == models.ActionPullRequestMerge {
			if _, err := s.GrantBadge(userID, models.BadgeRuleMidnightMerger, fmt.Sprintf("hour=%d", hour)); err != nil {
				log.Printf("❌ [BADGES] midnight_merger for user %s failed: %v", userID, err)
			}
		}
	}
	if weekendBadge := models.CatalogByCode[models.BadgeRuleWeekendWarrior]; data.WeekendCounter >= weekendBadge.Threshold && weekendBadge.Threshold > 0 {
		trigger := fmt.Sprintf("weekend_activity=%d", data.WeekendCounter)
		if _, err := s.GrantBadge(userID, models.BadgeRuleWeekendWarrior, trigger); err != nil {
			log.Printf("❌ [BADGES] weekend_warrior for user %s failed: %v", userID, err)
		}
	}
}

// GrantBadge is the single funnel every trigger goes through. The grant is
// create-if-absent on the (user, badge) unique index; a duplicate attempt is
// "already granted", not an error, and produces no side effects. The feed
// entry, event, and notification fire only after the grant row is committed.
func (s *BadgeService) GrantBadge(userID, code, trigger string) (bool, error) {
	badge, ok := models.CatalogByCode[code]
	if !ok {
		return false, fmt.Errorf("unknown badge code %q", code)
	}

	grant := models.UserBadge{
		ID:        uuid.NewString(),
		UserID:    userID,
		BadgeCode: code,
		Trigger:   trigger,
	}
	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil // already granted
	}

	log.Printf("🎖️ Badge awarded: %s → user %s (trigger: %s)", badge.Name, userID, trigger)

	entry := models.Activity{
		ID:     models.BadgeActivityID(userID, code),
		UserID: userID,
		Type:   models.ActivityBadgeEarned,
		Payload: models.ActivityPayload{
			Badge: &models.BadgeEarnedActivityPayload{
				BadgeCode: code,
				BadgeName: badge.Name,
				Rarity:    badge.Rarity,
				Trigger:   trigger,
			},
		},
	}
	if _, err := insertActivity(s.DB, entry); err != nil {
		log.Printf("⚠️ [BADGES] Feed entry for badge %s / user %s failed: %v", code, userID, err)
	}

	s.Bus.Publish(ProgressionEvent{
		UserID:    userID,
		Timestamp: grant.AwardedAt,
		Type:      EventBadgeEarned,
		Data: BadgeEarnedData{
			BadgeCode: code,
			BadgeName: badge.Name,
			Rarity:    badge.Rarity,
			Trigger:   trigger,
		},
	})

	if s.Notifier != nil {
		err := s.Notifier.CreateNotification(userID, "badge_earned",
			"Badge earned!",
			fmt.Sprintf("You earned the %q badge", badge.Name),
			map[string]string{"badge_code": code, "rarity": badge.Rarity})
		if err != nil {
			log.Printf("⚠️ [BADGES] Notification for badge %s / user %s failed: %v", code, userID, err)
		}
	}

	return true, nil
}
