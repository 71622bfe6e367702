package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devxp-progression-system/models"
)

func TestBitbucketValidateWebhook(t *testing.T) {
	adapter := NewBitbucketAdapter()
	body := []byte(`{}`)

	t.Run("request uuid preferred", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-Event-Key":    "repo:push",
			"X-Request-UUID": "req-1",
			"X-Hook-UUID":    "hook-1",
		}, body, "")
		assert.True(t, vr.Valid)
		assert.Equal(t, "req-1", vr.EventID)
	})

	t.Run("hook uuid fallback", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-Event-Key": "repo:push",
			"X-Hook-UUID": "hook-1",
		}, body, "")
		assert.True(t, vr.Valid)
		assert.Equal(t, "hook-1", vr.EventID)
	})

	t.Run("signature enforced when secret set", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-Event-Key":    "repo:push",
			"X-Request-UUID": "req-1",
		}, body, "secret")
		assert.False(t, vr.Valid)

		vr = adapter.ValidateWebhook(map[string]string{
			"X-Event-Key":     "repo:push",
			"X-Request-UUID":  "req-1",
			"X-Hub-Signature": signBody("secret", body),
		}, body, "secret")
		assert.True(t, vr.Valid)
	})
}

func TestBitbucketExtractUserID(t *testing.T) {
	adapter := NewBitbucketAdapter()

	payload := mustPayload(t, map[string]any{
		"actor": map[string]any{"uuid": "{u-1}", "nickname": "dev"},
	})
	assert.Equal(t, "{u-1}", adapter.ExtractUserID(payload))

	payload = mustPayload(t, map[string]any{
		"actor": map[string]any{"account_id": "acc-1"},
	})
	assert.Equal(t, "acc-1", adapter.ExtractUserID(payload))
}

func TestBitbucketMapPush(t *testing.T) {
	adapter := NewBitbucketAdapter()

	payload := mustPayload(t, map[string]any{
		"repository": map[string]any{"full_name": "acme/api"},
		"actor":      map[string]any{"nickname": "dev"},
		"push": map[string]any{
			"changes": []any{
				map[string]any{
					"new":     map[string]any{"name": "main"},
					"commits": []any{map[string]any{}, map[string]any{}},
				},
			},
		},
	})
	draft, err := adapter.MapEvent("repo:push", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodePush, draft.Type)
	assert.Equal(t, "main", draft.Context.Branch)
	assert.Equal(t, 2, draft.Metrics.Commits)

	// a change that only closes a branch is a deletion
	payload = mustPayload(t, map[string]any{
		"push": map[string]any{
			"changes": []any{
				map[string]any{"closed": true},
			},
		},
	})
	draft, err = adapter.MapEvent("repo:push", payload)
	assert.Nil(t, draft)
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
}

func TestBitbucketMapPullRequestStates(t *testing.T) {
	adapter := NewBitbucketAdapter()

	payload := mustPayload(t, map[string]any{
		"repository": map[string]any{"full_name": "acme/api"},
		"pullrequest": map[string]any{
			"id": 3, "title": "Fix flaky test",
			"created_on": "2026-08-14T08:00:00Z",
			"updated_on": "2026-08-14T11:00:00Z",
		},
	})

	draft, err := adapter.MapEvent("pullrequest:fulfilled", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionPullRequestMerge, draft.Type)
	assert.InDelta(t, 3.0, draft.Metrics.TimeToMergeHours, 0.001)

	draft, err = adapter.MapEvent("pullrequest:rejected", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionPullRequestClose, draft.Type)

	draft, err = adapter.MapEvent("pullrequest:approved", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodeReviewSubmit, draft.Type)
	assert.Equal(t, "approved", draft.Context.ReviewState)
}

func TestBitbucketServerRefsChanged(t *testing.T) {
	adapter := NewBitbucketServerAdapter()

	payload := mustPayload(t, map[string]any{
		"date":  "2026-08-14T10:00:00+0000",
		"actor": map[string]any{"id": 7, "name": "dev"},
		"repository": map[string]any{
			"slug":    "api",
			"project": map[string]any{"key": "ACME"},
		},
		"changes": []any{
			map[string]any{"type": "UPDATE", "ref": map[string]any{"displayId": "main"}},
			map[string]any{"type": "DELETE", "ref": map[string]any{"displayId": "old"}},
		},
	})
	draft, err := adapter.MapEvent("repo:refs_changed", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodePush, draft.Type)
	assert.Equal(t, "ACME/api", draft.Context.Repo)
	assert.Equal(t, "main", draft.Context.Branch)
	assert.Equal(t, 1, draft.Metrics.Commits)

	payload = mustPayload(t, map[string]any{
		"changes": []any{
			map[string]any{"type": "DELETE", "ref": map[string]any{"displayId": "old"}},
		},
	})
	draft, err = adapter.MapEvent("repo:refs_changed", payload)
	assert.Nil(t, draft)
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
}

func TestBitbucketServerMergeUsesMillis(t *testing.T) {
	adapter := NewBitbucketServerAdapter()

	payload := mustPayload(t, map[string]any{
		"actor": map[string]any{"id": 7, "name": "dev"},
		"pullRequest": map[string]any{
			"id": 11, "title": "Refactor queue",
			"createdDate": 1755100800000,
			"closedDate":  1755108000000, // 2h later
			"toRef": map[string]any{
				"repository": map[string]any{
					"slug":    "api",
					"project": map[string]any{"key": "ACME"},
				},
			},
			"fromRef": map[string]any{"displayId": "refactor-queue"},
		},
	})
	draft, err := adapter.MapEvent("pr:merged", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionPullRequestMerge, draft.Type)
	assert.InDelta(t, 2.0, draft.Metrics.TimeToMergeHours, 0.001)
	assert.Equal(t, "refactor-queue", draft.Context.Branch)
}

func TestBitbucketServerReviewStates(t *testing.T) {
	adapter := NewBitbucketServerAdapter()

	payload := mustPayload(t, map[string]any{
		"actor":       map[string]any{"id": 7, "name": "dev"},
		"pullRequest": map[string]any{"id": 11, "title": "Refactor queue"},
	})

	draft, err := adapter.MapEvent("pr:reviewed:needs_work", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodeReviewSubmit, draft.Type)
	assert.Equal(t, "needs_work", draft.Context.ReviewState)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewGitHubAdapter(), "gh-secret")
	registry.Register(NewBitbucketAdapter(), "")

	adapter, secret, ok := registry.Get("GitHub")
	require.True(t, ok)
	assert.Equal(t, "github", adapter.Provider())
	assert.Equal(t, "gh-secret", secret)

	_, _, ok = registry.Get("gitlab")
	assert.False(t, ok)

	assert.Equal(t, []string{"bitbucket", "github"}, registry.Supported())
}
