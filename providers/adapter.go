package providers

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"devxp-progression-system/models"
)

// ValidationResult is the outcome of header/signature validation for one
// delivery. EventType and EventID are extracted even for basic-auth
// providers that carry them in the body.
type ValidationResult struct {
	Valid     bool
	Err       string
	EventType string
	EventID   string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Err: fmt.Sprintf(format, args...)}
}

// GameActionDraft is the adapter's normalized view of one provider event.
// The pipeline fills in ids, user attribution and persistence fields.
type GameActionDraft struct {
	Type             models.ActionType
	Context          models.ActionContext
	Metrics          models.ActionMetrics
	Timestamp        time.Time // zero = pipeline substitutes receipt time
	ExternalUsername string
}

// SkipError marks an event that is valid but intentionally not XP-worthy
// (e.g. a PR "synchronize" or an Azure "active" status update). It is a
// benign no-op, not a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "event skipped: " + e.Reason
}

// Adapter normalizes one provider's webhooks into the canonical action
// model. Implementations are pure: no I/O, no shared mutable state.
type Adapter interface {
	Provider() string

	// ValidateWebhook checks required identifying headers and, when a secret
	// is configured, verifies integrity with a timing-safe comparison.
	// Verification failures are reported as invalid, never panicked.
	ValidateWebhook(headers map[string]string, body []byte, secret string) ValidationResult

	// ExtractUserID returns the provider-native actor id using the
	// provider's precedence rules, or "" when the event has no
	// attributable actor.
	ExtractUserID(payload map[string]any) string

	// MapEvent maps a provider event to a draft. Returns (nil, nil) for
	// unsupported event types, (nil, *SkipError) for supported-but-ignored
	// events, and a populated draft otherwise.
	MapEvent(eventType string, payload map[string]any) (*GameActionDraft, error)
}

// ParsePayload decodes a raw webhook body into the generic form the
// adapters traverse.
func ParsePayload(body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	return payload, nil
}

// Registry maps a provider key to its adapter and configured secret. It is
// built once at process start and passed by reference; there is no hidden
// global.
type Registry struct {
	entries map[string]registryEntry
}

type registryEntry struct {
	adapter Adapter
	secret  string
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]registryEntry{}}
}

// Register adds an adapter under its provider key. Secret may be empty when
// the provider is configured without integrity verification.
func (r *Registry) Register(adapter Adapter, secret string) {
	key := strings.ToLower(strings.TrimSpace(adapter.Provider()))
	r.entries[key] = registryEntry{adapter: adapter, secret: secret}
}

// Get returns the adapter and its secret for a provider key.
func (r *Registry) Get(provider string) (Adapter, string, bool) {
	entry, ok := r.entries[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, "", false
	}
	return entry.adapter, entry.secret, true
}

// Supported lists registered provider keys, sorted for stable logs.
func (r *Registry) Supported() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
