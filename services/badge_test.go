package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devxp-progression-system/models"
)

func newBadgeFixture(t *testing.T) (*BadgeService, *ProgressionService) {
	t.Helper()
	db := setupTestDB(t)
	bus := NewEventBus(nil)
	notifier := NewNotificationService(db)
	badgeSvc := NewBadgeService(db, bus, notifier)
	progressionSvc := NewProgressionService(db, bus)
	bus.Subscribe(badgeSvc.HandleEvent)
	bus.Subscribe(notifier.HandleEvent)
	require.NoError(t, badgeSvc.SeedCatalog())
	return badgeSvc, progressionSvc
}

func userBadgeCodes(t *testing.T, svc *BadgeService, userID string) []string {
	t.Helper()
	var grants []models.UserBadge
	require.NoError(t, svc.DB.Where("user_id = ?", userID).Find(&grants).Error)
	codes := make([]string, 0, len(grants))
	for _, g := range grants {
		codes = append(codes, g.BadgeCode)
	}
	return codes
}

func TestSeedCatalogIdempotent(t *testing.T) {
	svc, _ := newBadgeFixture(t)
	require.NoError(t, svc.SeedCatalog())

	var count int64
	require.NoError(t, svc.DB.Model(&models.BadgeType{}).Count(&count).Error)
	assert.Equal(t, int64(len(models.BadgeCatalog)), count)
}

func TestGrantBadgeOnce(t *testing.T) {
	svc, _ := newBadgeFixture(t)

	granted, err := svc.GrantBadge("user-1", "push_1", "code_push=1")
	require.NoError(t, err)
	assert.True(t, granted)

	// second attempt is a no-op, not an error
	granted, err = svc.GrantBadge("user-1", "push_1", "code_push=1")
	require.NoError(t, err)
	assert.False(t, granted)

	var count int64
	require.NoError(t, svc.DB.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_code = ?", "user-1", "push_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// exactly one feed entry and one notification despite the retry
	var feedCount int64
	require.NoError(t, svc.DB.Model(&models.Activity{}).
		Where("id = ?", models.BadgeActivityID("user-1", "push_1")).Count(&feedCount).Error)
	assert.Equal(t, int64(1), feedCount)

	var notifCount int64
	require.NoError(t, svc.DB.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", "user-1", "badge_earned").Count(&notifCount).Error)
	assert.Equal(t, int64(1), notifCount)
}

func TestGrantBadgeUnknownCode(t *testing.T) {
	svc, _ := newBadgeFixture(t)
	_, err := svc.GrantBadge("user-1", "no_such_badge", "test")
	assert.Error(t, err)
}

func TestMilestoneBadgeExactlyOnTenth(t *testing.T) {
	badgeSvc, progressionSvc := newBadgeFixture(t)
	at := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 12; i++ {
		_, err := progressionSvc.Apply("user-1", pushGain(fmt.Sprintf("act-%d", i), 120, at))
		require.NoError(t, err)

		var count int64
		require.NoError(t, badgeSvc.DB.Model(&models.UserBadge{}).
			Where("user_id = ? AND badge_code = ?", "user-1", "push_10").Count(&count).Error)
		if i < 10 {
			assert.Equal(t, int64(0), count, "push_10 must not exist before the 10th push (i=%d)", i)
		} else {
			assert.Equal(t, int64(1), count, "push_10 must exist exactly once from the 10th push on (i=%d)", i)
		}
	}

	// the first-push badge landed as well
	codes := userBadgeCodes(t, badgeSvc, "user-1")
	assert.Contains(t, codes, "push_1")
}

func TestLevelBadgesOnMultiLevelCrossing(t *testing.T) {
	badgeSvc, progressionSvc := newBadgeFixture(t)
	at := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	// 900 XP crosses levels 2 and 3 in one update; both level badges land
	_, err := progressionSvc.Apply("user-1", pushGain("act-big", 900, at))
	require.NoError(t, err)

	codes := userBadgeCodes(t, badgeSvc, "user-1")
	assert.Contains(t, codes, "level_2")
	assert.Contains(t, codes, "level_3")
}

func TestNightOwlAndMidnightMerger(t *testing.T) {
	badgeSvc, progressionSvc := newBadgeFixture(t)
	earlyMorning := time.Date(2026, 8, 12, 4, 30, 0, 0, time.UTC)

	_, err := progressionSvc.Apply("user-1", XPGain{
		ActionID:   "act-merge",
		ActionType: models.ActionPullRequestMerge,
		XPGained:   300,
		OccurredAt: earlyMorning,
	})
	require.NoError(t, err)

	codes := userBadgeCodes(t, badgeSvc, "user-1")
	assert.Contains(t, codes, models.BadgeRuleNightOwl)
	assert.Contains(t, codes, models.BadgeRuleMidnightMerger)

	// daytime merges trigger neither
	noon := time.Date(2026, 8, 12, 12, 0, 0, 0, time.UTC)
	_, err = progressionSvc.Apply("user-2", XPGain{
		ActionID:   "act-merge-2",
		ActionType: models.ActionPullRequestMerge,
		XPGained:   300,
		OccurredAt: noon,
	})
	require.NoError(t, err)
	codes = userBadgeCodes(t, badgeSvc, "user-2")
	assert.NotContains(t, codes, models.BadgeRuleNightOwl)
	assert.NotContains(t, codes, models.BadgeRuleMidnightMerger)
}

func TestWeekendWarrior(t *testing.T) {
	badgeSvc, progressionSvc := newBadgeFixture(t)
	saturday := time.Date(2026, 8, 15, 14, 0, 0, 0, time.UTC)

	threshold := models.CatalogByCode[models.BadgeRuleWeekendWarrior].Threshold
	require.Positive(t, threshold)

	for i := int64(1); i <= threshold; i++ {
		_, err := progressionSvc.Apply("user-1", pushGain(fmt.Sprintf("act-%d", i), 20, saturday))
		require.NoError(t, err)

		codes := userBadgeCodes(t, badgeSvc, "user-1")
		if i < threshold {
			assert.NotContains(t, codes, models.BadgeRuleWeekendWarrior, "i=%d", i)
		} else {
			assert.Contains(t, codes, models.BadgeRuleWeekendWarrior)
		}
	}
}

func TestLevelUpNotification(t *testing.T) {
	_, progressionSvc := newBadgeFixture(t)
	at := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)

	_, err := progressionSvc.Apply("user-1", pushGain("act-1", 400, at))
	require.NoError(t, err)

	var notif models.Notification
	require.NoError(t, progressionSvc.DB.
		Where("user_id = ? AND type = ?", "user-1", "level_up").First(&notif).Error)
	assert.Contains(t, notif.Title, "Level 2")
}
