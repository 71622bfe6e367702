package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devxp-progression-system/models"
)

func TestAzureValidateWebhook(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()
	body := []byte(`{"eventType":"git.push","id":"evt-1"}`)
	cred := "Basic aG9vazpzZWNyZXQ="

	t.Run("valid credential", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{"Authorization": cred}, body, cred)
		assert.True(t, vr.Valid)
		assert.Equal(t, "git.push", vr.EventType)
		assert.Equal(t, "evt-1", vr.EventID)
	})

	t.Run("wrong credential", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{"Authorization": "Basic nope"}, body, cred)
		assert.False(t, vr.Valid)
	})

	t.Run("missing event id", func(t *testing.T) {
		vr := adapter.ValidateWebhook(nil, []byte(`{"eventType":"git.push"}`), "")
		assert.False(t, vr.Valid)
	})
}

func TestAzureExtractUserIDPrecedence(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()

	payload := mustPayload(t, map[string]any{
		"resource": map[string]any{
			"pushedBy":  map[string]any{"id": "pusher-id"},
			"createdBy": map[string]any{"id": "creator-id"},
		},
	})
	assert.Equal(t, "pusher-id", adapter.ExtractUserID(payload))

	payload = mustPayload(t, map[string]any{
		"resource": map[string]any{
			"closedBy":  map[string]any{"id": "closer-id"},
			"createdBy": map[string]any{"id": "creator-id"},
		},
	})
	assert.Equal(t, "closer-id", adapter.ExtractUserID(payload))

	payload = mustPayload(t, map[string]any{
		"resource": map[string]any{
			"comment": map[string]any{"author": map[string]any{"id": "commenter-id"}},
		},
	})
	assert.Equal(t, "commenter-id", adapter.ExtractUserID(payload))

	assert.Equal(t, "", adapter.ExtractUserID(map[string]any{}))
}

func TestAzureMapPush(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()

	payload := mustPayload(t, map[string]any{
		"createdDate": "2026-08-14T10:00:00Z",
		"resource": map[string]any{
			"commits": []any{map[string]any{}, map[string]any{}},
			"refUpdates": []any{map[string]any{
				"name":        "refs/heads/main",
				"oldObjectId": "1111111111111111111111111111111111111111",
				"newObjectId": "2222222222222222222222222222222222222222",
			}},
			"repository": map[string]any{"name": "api"},
			"pushedBy":   map[string]any{"uniqueName": "dev@acme.com"},
		},
	})
	draft, err := adapter.MapEvent("git.push", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodePush, draft.Type)
	assert.Equal(t, "main", draft.Context.Branch)
	assert.Equal(t, 2, draft.Metrics.Commits)
	assert.False(t, draft.Context.NewBranch)
}

func TestAzureMapPushBranchLifecycle(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()

	t.Run("new branch", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{
			"resource": map[string]any{
				"commits": []any{map[string]any{}},
				"refUpdates": []any{map[string]any{
					"name":        "refs/heads/feature",
					"oldObjectId": zeroObjectID,
					"newObjectId": "2222222222222222222222222222222222222222",
				}},
			},
		})
		draft, err := adapter.MapEvent("git.push", payload)
		require.NoError(t, err)
		assert.True(t, draft.Context.NewBranch)
	})

	t.Run("branch deletion skipped", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{
			"resource": map[string]any{
				"commits": []any{map[string]any{}},
				"refUpdates": []any{map[string]any{
					"name":        "refs/heads/feature",
					"oldObjectId": "2222222222222222222222222222222222222222",
					"newObjectId": zeroObjectID,
				}},
			},
		})
		draft, err := adapter.MapEvent("git.push", payload)
		assert.Nil(t, draft)
		var skip *SkipError
		require.True(t, errors.As(err, &skip))
	})
}

func TestAzureMapPullRequestUpdated(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()

	t.Run("completed becomes merge with time-to-merge", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{
			"resource": map[string]any{
				"status":        "completed",
				"pullRequestId": 9,
				"title":         "Add retries",
				"creationDate":  "2026-08-14T08:00:00Z",
				"closedDate":    "2026-08-14T20:00:00Z",
				"repository":    map[string]any{"name": "api"},
			},
		})
		draft, err := adapter.MapEvent("git.pullrequest.updated", payload)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPullRequestMerge, draft.Type)
		assert.InDelta(t, 12.0, draft.Metrics.TimeToMergeHours, 0.001)
	})

	t.Run("abandoned becomes close", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{
			"resource": map[string]any{"status": "abandoned", "pullRequestId": 9},
		})
		draft, err := adapter.MapEvent("git.pullrequest.updated", payload)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPullRequestClose, draft.Type)
	})

	t.Run("active update skipped", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{
			"resource": map[string]any{"status": "active", "pullRequestId": 9},
		})
		draft, err := adapter.MapEvent("git.pullrequest.updated", payload)
		assert.Nil(t, draft)
		var skip *SkipError
		require.True(t, errors.As(err, &skip))
	})
}

func TestAzureMapBuildComplete(t *testing.T) {
	adapter := NewAzureDevOpsAdapter()

	payload := mustPayload(t, map[string]any{
		"resource": map[string]any{
			"status":     "succeeded",
			"definition": map[string]any{"name": "api-ci"},
		},
	})
	draft, err := adapter.MapEvent("build.complete", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCISuccess, draft.Type)
	assert.Equal(t, "api-ci", draft.Context.PipelineName)

	payload = mustPayload(t, map[string]any{
		"resource": map[string]any{"status": "failed"},
	})
	draft, err = adapter.MapEvent("build.complete", payload)
	assert.Nil(t, draft)
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
}
