package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"devxp-progression-system/models"
	"devxp-progression-system/providers"
)

// ErrUnsupportedProvider means the request hit a provider key nothing is
// registered for — a deployment error, not a client error.
var ErrUnsupportedProvider = errors.New("unsupported webhook provider")

// ValidationError rejects a delivery before any side effect: missing
// headers, bad signature, unparseable body.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "webhook validation failed: " + e.Reason
}

// ProcessingError means the action was persisted but XP processing failed;
// the sender should retry, and dedup makes the retry safe.
type ProcessingError struct {
	ActionID string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing action %s failed: %v", e.ActionID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

type PipelineOutcome string

const (
	OutcomeProcessed PipelineOutcome = "processed"
	OutcomeDuplicate PipelineOutcome = "duplicate"
	OutcomeSkipped   PipelineOutcome = "skipped"
)

// PipelineResult reports what one accepted delivery produced. Duplicate and
// skipped outcomes are success responses: the sender must stop retrying.
type PipelineResult struct {
	Outcome   PipelineOutcome
	Reason    string
	EventType string
	EventID   string
	Action    *models.GameAction
	Update    *StateUpdate
}

// AuditStore persists raw payloads for later inspection. Implementations
// are best-effort; the pipeline never fails a delivery on audit errors.
type AuditStore interface {
	Store(provider, eventID string, body []byte) error
}

// WebhookPipeline turns a raw provider request into a deduplicated,
// attributed, processed GameAction.
type WebhookPipeline struct {
	DB          *gorm.DB
	Registry    *providers.Registry
	Handlers    *ActionHandlerSet
	Progression *ProgressionService
	Audit       AuditStore // nil = audit disabled
}

func NewWebhookPipeline(db *gorm.DB, registry *providers.Registry, handlers *ActionHandlerSet, progression *ProgressionService, audit AuditStore) *WebhookPipeline {
	return &WebhookPipeline{
		DB:          db,
		Registry:    registry,
		Handlers:    handlers,
		Progression: progression,
		Audit:       audit,
	}
}

// Handle runs the full delivery state machine. Error classes map onto HTTP
// responses: ErrUnsupportedProvider and ProcessingError are server errors
// (sender retries), ValidationError is a client error, and a non-nil result
// is always a success response.
func (p *WebhookPipeline) Handle(providerKey string, headers map[string]string, body []byte) (*PipelineResult, error) {
	adapter, secret, ok := p.Registry.Get(providerKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, providerKey)
	}

	validation := adapter.ValidateWebhook(headers, body, secret)
	if !validation.Valid {
		return nil, &ValidationError{Reason: validation.Err}
	}

	result := &PipelineResult{EventType: validation.EventType, EventID: validation.EventID}

	payload, err := providers.ParsePayload(body)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	// Many events carry no attributable actor (bot pushes, system merges);
	// they must not block the provider's retry logic.
	externalUserID := adapter.ExtractUserID(payload)
	if externalUserID == "" {
		result.Outcome = OutcomeSkipped
		result.Reason = "no attributable actor"
		return result, nil
	}

	if p.Audit != nil {
		if err := p.Audit.Store(adapter.Provider(), validation.EventID, body); err != nil {
			log.Printf("⚠️ [WEBHOOK] Audit store failed for %s/%s: %v", adapter.Provider(), validation.EventID, err)
		}
	}

	// Exactly-once gate, part one: a recorded event id means a previous
	// delivery fully processed this event.
	var existing models.WebhookEvent
	err = p.DB.Where("provider = ? AND event_id = ?", adapter.Provider(), validation.EventID).First(&existing).Error
	if err == nil {
		result.Outcome = OutcomeDuplicate
		result.Reason = "event already processed"
		return result, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}

	var mapping models.UserMapping
	err = p.DB.Where("provider = ? AND external_user_id = ?", adapter.Provider(), externalUserID).First(&mapping).Error
	if err == gorm.ErrRecordNotFound {
		result.Outcome = OutcomeSkipped
		result.Reason = "unmapped external user " + externalUserID
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	draft, err := adapter.MapEvent(validation.EventType, payload)
	if err != nil {
		var skip *providers.SkipError
		if errors.As(err, &skip) {
			log.Printf("➡️ [WEBHOOK] %s/%s skipped: %s", adapter.Provider(), validation.EventID, skip.Reason)
			result.Outcome = OutcomeSkipped
			result.Reason = skip.Reason
			return result, nil
		}
		return nil, fmt.Errorf("event mapping failed: %w", err)
	}
	if draft == nil {
		result.Outcome = OutcomeSkipped
		result.Reason = "unsupported event type " + validation.EventType
		return result, nil
	}

	timestamp := draft.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	action := &models.GameAction{
		ID:               uuid.NewString(),
		Provider:         adapter.Provider(),
		ExternalID:       validation.EventID,
		Type:             draft.Type,
		UserID:           mapping.UserID,
		ExternalUserID:   externalUserID,
		ExternalUsername: draft.ExternalUsername,
		Context:          draft.Context,
		Metrics:          draft.Metrics,
		Status:           models.ActionStatusPending,
		Timestamp:        timestamp,
	}
	if err := p.DB.Create(action).Error; err != nil {
		// Exactly-once gate, part two: the unique (provider, external_id)
		// index means an earlier delivery of this event already persisted an
		// action. That earlier action may have been fully processed, may
		// still be in flight, or may have failed — each case settles
		// differently.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return p.retryExisting(adapter.Provider(), validation.EventID, result)
		}
		return nil, fmt.Errorf("failed to persist action: %w", err)
	}

	update, err := p.process(action)
	if err != nil {
		return nil, &ProcessingError{ActionID: action.ID, Err: err}
	}

	result.Outcome = OutcomeProcessed
	result.Action = action
	result.Update = update
	log.Printf("✅ [WEBHOOK] %s/%s → %s for user %s (+%d XP)",
		adapter.Provider(), validation.EventID, action.Type, action.UserID, update.State.TotalXP-update.Previous.TotalXP)
	return result, nil
}

// retryExisting settles a delivery whose action row already exists. A
// processed action means the event is done. A failed action — or one
// stalled in pending past the maintenance horizon — is claimed back to
// pending and re-run, so the sender's retry recovers the XP instead of
// being swallowed. A fresh pending action is a concurrent delivery still
// in flight and is reported as a duplicate.
func (p *WebhookPipeline) retryExisting(provider, eventID string, result *PipelineResult) (*PipelineResult, error) {
	var action models.GameAction
	if err := p.DB.Where("provider = ? AND external_id = ?", provider, eventID).First(&action).Error; err != nil {
		return nil, fmt.Errorf("duplicate action lookup failed: %w", err)
	}
	if action.Status == models.ActionStatusProcessed {
		result.Outcome = OutcomeDuplicate
		result.Reason = "event already recorded"
		return result, nil
	}

	// Claim the action before re-running it: the conditional update makes
	// exactly one concurrent retry win.
	claim := p.DB.Model(&models.GameAction{}).
		Where("id = ? AND (status = ? OR (status = ? AND created_at < ?))",
			action.ID, models.ActionStatusFailed, models.ActionStatusPending, time.Now().UTC().Add(-stalledActionAge)).
		Updates(map[string]interface{}{"status": models.ActionStatusPending, "error": ""})
	if claim.Error != nil {
		return nil, fmt.Errorf("failed to claim action %s for retry: %w", action.ID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		result.Outcome = OutcomeDuplicate
		result.Reason = "event delivery in progress"
		return result, nil
	}

	action.Status = models.ActionStatusPending
	action.Error = ""
	log.Printf("🔁 [WEBHOOK] Re-running action %s for %s/%s", action.ID, provider, eventID)
	update, err := p.process(&action)
	if err != nil {
		return nil, &ProcessingError{ActionID: action.ID, Err: err}
	}
	result.Outcome = OutcomeProcessed
	result.Action = &action
	result.Update = update
	return result, nil
}

// process runs the progression engine for a pending action and settles its
// status. On success the dedup record is written alongside the processed
// mark; on failure the action keeps the error and the dedup record is NOT
// written, so the sender's retry can run the event again.
func (p *WebhookPipeline) process(action *models.GameAction) (*StateUpdate, error) {
	update, err := p.applyXP(action)
	if err != nil {
		action.Status = models.ActionStatusFailed
		action.Error = err.Error()
		if saveErr := p.DB.Save(action).Error; saveErr != nil {
			log.Printf("❌ [WEBHOOK] Failed to mark action %s failed: %v", action.ID, saveErr)
		}
		return nil, err
	}

	action.Status = models.ActionStatusProcessed
	action.Error = ""
	action.XPGained = update.State.TotalXP - update.Previous.TotalXP
	err = p.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(action).Error; err != nil {
			return err
		}
		dedup := models.WebhookEvent{
			ID:        uuid.NewString(),
			Provider:  action.Provider,
			EventID:   action.ExternalID,
			EventType: string(action.Type),
			ActionID:  action.ID,
		}
		if err := tx.Create(&dedup).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return nil
	})
	if err != nil {
		// XP already committed; the action row stays pending and the
		// maintenance sweep will flag it. Retries are still safe: the
		// action's unique index absorbs the redelivery.
		log.Printf("⚠️ [WEBHOOK] Failed to settle action %s: %v", action.ID, err)
	}
	return update, nil
}

func (p *WebhookPipeline) applyXP(action *models.GameAction) (*StateUpdate, error) {
	total, breakdown, err := p.Handlers.ComputeXP(action.Type, action.Context, action.Metrics)
	if err != nil {
		return nil, err
	}
	return p.Progression.Apply(action.UserID, XPGain{
		ActionID:   action.ID,
		ActionType: action.Type,
		XPGained:   total,
		Breakdown:  breakdown,
		Context:    action.Context,
		Metrics:    action.Metrics,
		OccurredAt: action.Timestamp,
	})
}
