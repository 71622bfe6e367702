package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"devxp-progression-system/models"
)

const (
	// Pending actions older than this were interrupted between persist and
	// processing (crash, DB outage). The sweep flags them so the delivery
	// retry path is the only thing that resurrects them.
	stalledActionAge = 1 * time.Hour

	// Dedup records are only needed while providers still retry. GitHub
	// and Azure retry for days at most; 90 days is a comfortable margin.
	dedupRetention = 90 * 24 * time.Hour
)

// MaintenanceService owns the background sweeps over the action and dedup
// tables.
type MaintenanceService struct {
	DB *gorm.DB
}

// StartMaintenanceScheduler launches the recurring sweeps. Jobs run until
// process exit; there is no stop handle, matching the lifetime of the app.
func (s *MaintenanceService) StartMaintenanceScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 10 minutes: fail pending actions that stalled mid-pipeline
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-stalledActionAge)
			res := s.DB.Model(&models.GameAction{}).
				Where("status = ? AND created_at < ?", models.ActionStatusPending, cutoff).
				Updates(map[string]interface{}{
					"status": models.ActionStatusFailed,
					"error":  "stalled before processing",
				})
			if res.Error != nil {
				log.Printf("[Scheduler] Stalled-action sweep error: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("⚠️ [Scheduler] Marked %d stalled actions as failed", res.RowsAffected)
			}
		}),
	)

	// Daily: prune dedup records past the retry window
	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-dedupRetention)
			res := s.DB.Where("received_at < ?", cutoff).Delete(&models.WebhookEvent{})
			if res.Error != nil {
				log.Printf("[Scheduler] Dedup prune error: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("✅ [Scheduler] Pruned %d expired webhook dedup records", res.RowsAffected)
			}
		}),
	)
}
