package services

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"devxp-progression-system/models"
)

// NotificationService writes notification rows for the delivery service to
// pick up. Callers treat failures as non-critical.
type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

func (s *NotificationService) CreateNotification(userID, notifType, title, message string, metadata map[string]string) error {
	notification := models.Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     notifType,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	}
	return s.DB.Create(&notification).Error
}

// HandleEvent turns level-ups into notifications. Subscribed on the event
// bus, so it runs strictly after the state transaction commits.
func (s *NotificationService) HandleEvent(evt ProgressionEvent) {
	if evt.Type != EventLevelUp {
		return
	}
	data, ok := evt.Data.(LevelUpData)
	if !ok {
		return
	}
	err := s.CreateNotification(evt.UserID, "level_up",
		fmt.Sprintf("Level %d reached!", data.NewLevel),
		fmt.Sprintf("You are now level %d with %d XP", data.NewLevel, data.TotalXP),
		map[string]string{"level": fmt.Sprintf("%d", data.NewLevel)})
	if err != nil {
		log.Printf("⚠️ [NOTIFY] Level-up notification for user %s failed: %v", evt.UserID, err)
	}
}
