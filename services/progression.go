package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"devxp-progression-system/models"
)

// XPGain is one state-store update: the XP delta plus enough context to
// write the feed entry and time buckets.
type XPGain struct {
	ActionID   string // empty for manual grants
	ActionType models.ActionType
	XPGained   int64
	Breakdown  XPBreakdown
	Context    models.ActionContext
	Metrics    models.ActionMetrics
	OccurredAt time.Time
}

// StateUpdate is the result of one committed update.
type StateUpdate struct {
	State          *models.ProgressionState
	Previous       models.ProgressionState
	LeveledUp      bool
	LevelsCrossed  []int // every level in (previous, new], in order
	Counter        int64 // lifetime counter for the gained action type, post-update
	WeekendCounter int64 // weekly weekend counter post-update; 0 on weekdays
}

type ProgressionService struct {
	DB  *gorm.DB
	Bus *EventBus
}

func NewProgressionService(db *gorm.DB, bus *EventBus) *ProgressionService {
	return &ProgressionService{DB: db, Bus: bus}
}

// EnsureState ensures a ProgressionState row exists for the user (idempotent).
func (s *ProgressionService) EnsureState(userID string) (*models.ProgressionState, error) {
	return ensureStateTx(s.DB, userID)
}

func ensureStateTx(tx *gorm.DB, userID string) (*models.ProgressionState, error) {
	var state models.ProgressionState
	err := tx.Where("user_id = ?", userID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	_, _, toNext := XPProgress(0)
	state = models.ProgressionState{
		ID:            uuid.NewString(),
		UserID:        userID,
		TotalXP:       0,
		Level:         1,
		XPToNextLevel: toNext,
		Counters:      models.CounterMap{},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error; err != nil {
		return nil, err
	}
	// A concurrent creator may have won the insert; read the surviving row.
	if err := tx.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// Apply commits an XP gain and then publishes the resulting events. The
// events (and everything hanging off them — badges, notifications, redis
// fan-out) run strictly after the transaction commits, so a retried
// transaction never duplicates an external effect.
func (s *ProgressionService) Apply(userID string, gain XPGain) (*StateUpdate, error) {
	update, err := s.UpdateState(userID, gain)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	occurredAt := gain.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	s.Bus.Publish(ProgressionEvent{
		UserID:    userID,
		Timestamp: now,
		Type:      EventXPGained,
		Data: XPGainedData{
			ActionID:   gain.ActionID,
			ActionType: gain.ActionType,
			XPGained:   gain.XPGained,
			TotalXP:    update.State.TotalXP,
		},
	})
	s.Bus.Publish(ProgressionEvent{
		UserID:    userID,
		Timestamp: now,
		Type:      EventActivityRecorded,
		Data: ActivityRecordedData{
			ActionID:       gain.ActionID,
			ActionType:     gain.ActionType,
			Counter:        update.Counter,
			WeekendCounter: update.WeekendCounter,
			OccurredAt:     occurredAt,
		},
	})
	if update.LeveledUp {
		s.Bus.Publish(ProgressionEvent{
			UserID:    userID,
			Timestamp: now,
			Type:      EventLevelUp,
			Data: LevelUpData{
				PreviousLevel: update.Previous.Level,
				NewLevel:      update.State.Level,
				TotalXP:       update.State.TotalXP,
				XPToNextLevel: update.State.XPToNextLevel,
			},
		})
	}
	return update, nil
}

// GrantXP issues an admin XP grant. The grant is recorded as a manual_grant
// action and flows through the same Apply path as webhook-driven actions,
// so feed entries, buckets, and level-ups stay consistent with organic XP.
func (s *ProgressionService) GrantXP(userID string, amount int64, reason string) (*StateUpdate, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	action := &models.GameAction{
		ID:         uuid.NewString(),
		Provider:   "manual",
		ExternalID: uuid.NewString(),
		Type:       models.ActionManualGrant,
		UserID:     userID,
		Context:    models.ActionContext{Provider: "manual", Note: reason},
		Status:     models.ActionStatusProcessed,
		XPGained:   amount,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.DB.Create(action).Error; err != nil {
		return nil, fmt.Errorf("failed to record manual grant: %w", err)
	}

	update, err := s.Apply(userID, XPGain{
		ActionID:   action.ID,
		ActionType: models.ActionManualGrant,
		XPGained:   amount,
		Context:    action.Context,
		OccurredAt: action.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🎮 [XP] Manual grant of %d XP to user %s (%s)", amount, userID, reason)
	return update, nil
}

// UpdateState executes the read-modify-write of the user aggregate, the
// current day/week buckets, and the feed entries as a single transaction.
// Feed rows use deterministic ids with create-if-absent semantics, so
// replays of the same logical update converge instead of erroring.
func (s *ProgressionService) UpdateState(userID string, gain XPGain) (*StateUpdate, error) {
	if gain.XPGained < 0 {
		return nil, fmt.Errorf("xp gain must be non-negative, got %d", gain.XPGained)
	}

	occurredAt := gain.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	occurredAt = occurredAt.UTC()

	var update StateUpdate
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		state, err := ensureStateTx(tx, userID)
		if err != nil {
			return err
		}
		update.Previous = *state
		update.Previous.Counters = make(models.CounterMap, len(state.Counters))
		for k, v := range state.Counters {
			update.Previous.Counters[k] = v
		}

		state.TotalXP += gain.XPGained
		newLevel, intoLevel, toNext := XPProgress(state.TotalXP)
		state.CurrentLevelXP = intoLevel
		state.XPToNextLevel = toNext
		if state.Counters == nil {
			state.Counters = models.CounterMap{}
		}
		state.Counters[gain.ActionType]++
		update.Counter = state.Counters[gain.ActionType]

		now := time.Now()
		state.CountersLastUpdated = &now
		state.LastActivityDate = &occurredAt

		if newLevel > state.Level {
			update.LeveledUp = true
			for lvl := state.Level + 1; lvl <= newLevel; lvl++ {
				update.LevelsCrossed = append(update.LevelsCrossed, lvl)
			}
			state.LastLevelUpAt = &now
		}
		state.Level = newLevel

		if err := tx.Save(state).Error; err != nil {
			return err
		}

		// Time buckets: targeted increments only, so concurrent writers on
		// the same bucket both land.
		daily := models.DailyTimeframeID(occurredAt)
		weekly := models.WeeklyTimeframeID(occurredAt)
		if _, err := incrementStat(tx, userID, models.GranularityDaily, daily, gain.ActionType, gain.XPGained, occurredAt); err != nil {
			return err
		}
		if _, err := incrementStat(tx, userID, models.GranularityWeekly, weekly, gain.ActionType, gain.XPGained, occurredAt); err != nil {
			return err
		}
		if gain.ActionID != "" && isWeekend(occurredAt) {
			weekendCount, err := incrementStat(tx, userID, models.GranularityWeekly, weekly, models.StatWeekendActivity, 0, occurredAt)
			if err != nil {
				return err
			}
			update.WeekendCounter = weekendCount
		}

		// Feed entries, idempotent by deterministic id.
		if gain.ActionID != "" {
			entry := models.Activity{
				ID:     models.GameActionActivityID(gain.ActionID),
				UserID: userID,
				Type:   models.ActivityGameAction,
				Payload: models.ActivityPayload{
					Action: &models.GameActionActivityPayload{
						ActionID:    gain.ActionID,
						ActionType:  gain.ActionType,
						Context:     gain.Context,
						Metrics:     gain.Metrics,
						XPEarned:    gain.XPGained,
						XPBreakdown: gain.Breakdown,
					},
				},
			}
			if _, err := insertActivity(tx, entry); err != nil {
				return err
			}
		}
		for _, lvl := range update.LevelsCrossed {
			entry := models.Activity{
				ID:     models.LevelUpActivityID(userID, lvl),
				UserID: userID,
				Type:   models.ActivityLevelUp,
				Payload: models.ActivityPayload{
					LevelUp: &models.LevelUpActivityPayload{
						PreviousLevel: lvl - 1,
						NewLevel:      lvl,
						TotalXP:       state.TotalXP,
						XPToNextLevel: state.XPToNextLevel,
					},
				},
			}
			if _, err := insertActivity(tx, entry); err != nil {
				return err
			}
		}

		update.State = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	if update.LeveledUp {
		log.Printf("🎮 Level up: user %s → L%d (XP=%d)", userID, update.State.Level, update.State.TotalXP)
	}
	return &update, nil
}

// incrementStat upserts one bucket counter row and returns the post-update
// count.
func incrementStat(tx *gorm.DB, userID, granularity, timeframeID string, actionType models.ActionType, xp int64, at time.Time) (int64, error) {
	stat := models.ActivityStat{
		ID:           uuid.NewString(),
		UserID:       userID,
		Granularity:  granularity,
		TimeframeID:  timeframeID,
		ActionType:   actionType,
		Count:        1,
		XPGained:     xp,
		LastActivity: at,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "granularity"}, {Name: "timeframe_id"}, {Name: "action_type"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"count":         gorm.Expr("count + 1"),
			"xp_gained":     gorm.Expr("xp_gained + ?", xp),
			"last_activity": at,
		}),
	}).Create(&stat).Error
	if err != nil {
		return 0, err
	}

	var current models.ActivityStat
	err = tx.Where("user_id = ? AND granularity = ? AND timeframe_id = ? AND action_type = ?",
		userID, granularity, timeframeID, actionType).First(&current).Error
	if err != nil {
		return 0, err
	}
	return current.Count, nil
}

// insertActivity writes a feed entry with create-if-absent semantics.
// Returns false when the deterministic id already exists.
func insertActivity(tx *gorm.DB, entry models.Activity) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func isWeekend(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
