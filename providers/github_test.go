package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devxp-progression-system/models"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func mustPayload(t *testing.T, v map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	payload, err := ParsePayload(raw)
	require.NoError(t, err)
	return payload
}

func TestGitHubValidateWebhook(t *testing.T) {
	adapter := NewGitHubAdapter()
	body := []byte(`{"action":"opened"}`)
	secret := "hook-secret"

	t.Run("valid signed delivery", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-GitHub-Event":      "pull_request",
			"X-GitHub-Delivery":   "d-1",
			"X-Hub-Signature-256": signBody(secret, body),
		}, body, secret)
		assert.True(t, vr.Valid)
		assert.Equal(t, "pull_request", vr.EventType)
		assert.Equal(t, "d-1", vr.EventID)
	})

	t.Run("lowercase header names accepted", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"x-github-event":      "push",
			"x-github-delivery":   "d-2",
			"x-hub-signature-256": signBody(secret, body),
		}, body, secret)
		assert.True(t, vr.Valid)
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		sig := signBody(secret, body)
		vr := adapter.ValidateWebhook(map[string]string{
			"X-GitHub-Event":      "push",
			"X-GitHub-Delivery":   "d-3",
			"X-Hub-Signature-256": sig,
		}, []byte(`{"action":"opened","extra":1}`), secret)
		assert.False(t, vr.Valid)
		assert.Contains(t, vr.Err, "signature mismatch")
	})

	t.Run("missing delivery id rejected", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-GitHub-Event": "push",
		}, body, "")
		assert.False(t, vr.Valid)
	})

	t.Run("no secret skips signature check", func(t *testing.T) {
		vr := adapter.ValidateWebhook(map[string]string{
			"X-GitHub-Event":    "push",
			"X-GitHub-Delivery": "d-4",
		}, body, "")
		assert.True(t, vr.Valid)
	})
}

func TestGitHubExtractUserID(t *testing.T) {
	adapter := NewGitHubAdapter()

	payload := mustPayload(t, map[string]any{
		"sender": map[string]any{"id": 12345, "login": "octocat"},
	})
	assert.Equal(t, "12345", adapter.ExtractUserID(payload))

	payload = mustPayload(t, map[string]any{
		"sender": map[string]any{"login": "octocat"},
	})
	assert.Equal(t, "octocat", adapter.ExtractUserID(payload))

	assert.Equal(t, "", adapter.ExtractUserID(map[string]any{}))
}

func TestGitHubMapPush(t *testing.T) {
	adapter := NewGitHubAdapter()

	payload := mustPayload(t, map[string]any{
		"ref":   "refs/heads/feature/login",
		"after": "abc123",
		"repository": map[string]any{"full_name": "acme/api"},
		"pusher":     map[string]any{"name": "octocat"},
		"commits": []any{
			map[string]any{
				"added":    []any{"a.go"},
				"modified": []any{"b.go"},
				"removed":  []any{},
			},
			map[string]any{
				"added":    []any{},
				"modified": []any{"b.go", "c.go"},
				"removed":  []any{},
			},
		},
		"head_commit": map[string]any{"timestamp": "2026-08-14T10:00:00Z"},
	})

	draft, err := adapter.MapEvent("push", payload)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, models.ActionCodePush, draft.Type)
	assert.Equal(t, "acme/api", draft.Context.Repo)
	assert.Equal(t, "feature/login", draft.Context.Branch)
	assert.Equal(t, 2, draft.Metrics.Commits)
	// b.go appears in both commits but counts once
	assert.Equal(t, 3, draft.Metrics.ChangedFiles)
	assert.Equal(t, "octocat", draft.ExternalUsername)
	assert.False(t, draft.Timestamp.IsZero())
}

func TestGitHubMapPushSkips(t *testing.T) {
	adapter := NewGitHubAdapter()

	t.Run("branch deletion", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{"deleted": true})
		draft, err := adapter.MapEvent("push", payload)
		assert.Nil(t, draft)
		var skip *SkipError
		require.True(t, errors.As(err, &skip))
	})

	t.Run("empty push on existing branch", func(t *testing.T) {
		payload := mustPayload(t, map[string]any{"commits": []any{}})
		draft, err := adapter.MapEvent("push", payload)
		assert.Nil(t, draft)
		var skip *SkipError
		require.True(t, errors.As(err, &skip))
	})
}

func TestGitHubMapPullRequest(t *testing.T) {
	adapter := NewGitHubAdapter()

	base := func(action string, pr map[string]any) map[string]any {
		return map[string]any{
			"action":       action,
			"pull_request": pr,
			"repository":   map[string]any{"full_name": "acme/api"},
			"sender":       map[string]any{"login": "octocat"},
		}
	}

	t.Run("opened", func(t *testing.T) {
		payload := mustPayload(t, base("opened", map[string]any{
			"number": 7, "title": "Add login", "additions": 120, "deletions": 4,
			"created_at": "2026-08-14T10:00:00Z",
		}))
		draft, err := adapter.MapEvent("pull_request", payload)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPullRequestCreate, draft.Type)
		assert.Equal(t, 7, draft.Context.PRNumber)
		assert.Equal(t, 120, draft.Metrics.Additions)
	})

	t.Run("closed and merged", func(t *testing.T) {
		payload := mustPayload(t, base("closed", map[string]any{
			"number": 7, "merged": true,
			"created_at": "2026-08-14T10:00:00Z",
			"merged_at":  "2026-08-14T16:00:00Z",
		}))
		draft, err := adapter.MapEvent("pull_request", payload)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPullRequestMerge, draft.Type)
		assert.InDelta(t, 6.0, draft.Metrics.TimeToMergeHours, 0.001)
	})

	t.Run("closed without merge", func(t *testing.T) {
		payload := mustPayload(t, base("closed", map[string]any{
			"number": 7, "merged": false, "closed_at": "2026-08-14T16:00:00Z",
		}))
		draft, err := adapter.MapEvent("pull_request", payload)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPullRequestClose, draft.Type)
	})

	t.Run("synchronize skipped", func(t *testing.T) {
		payload := mustPayload(t, base("synchronize", map[string]any{"number": 7}))
		draft, err := adapter.MapEvent("pull_request", payload)
		assert.Nil(t, draft)
		var skip *SkipError
		require.True(t, errors.As(err, &skip))
	})
}

func TestGitHubMapIssueAndComments(t *testing.T) {
	adapter := NewGitHubAdapter()

	payload := mustPayload(t, map[string]any{
		"action": "closed",
		"issue": map[string]any{
			"number": 42, "title": "Crash on login",
			"assignee": map[string]any{"login": "octocat"},
		},
		"repository": map[string]any{"full_name": "acme/api"},
	})
	draft, err := adapter.MapEvent("issues", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionIssueClose, draft.Type)
	assert.True(t, draft.Metrics.HadAssignee)

	payload = mustPayload(t, map[string]any{
		"action":  "created",
		"issue":   map[string]any{"number": 42},
		"comment": map[string]any{"created_at": "2026-08-14T10:00:00Z"},
	})
	draft, err = adapter.MapEvent("issue_comment", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCommentCreate, draft.Type)
	assert.Equal(t, 42, draft.Context.IssueNumber)
}

func TestGitHubMapWorkflowRun(t *testing.T) {
	adapter := NewGitHubAdapter()

	payload := mustPayload(t, map[string]any{
		"action": "completed",
		"workflow_run": map[string]any{
			"conclusion": "success", "name": "CI", "head_branch": "main",
		},
	})
	draft, err := adapter.MapEvent("workflow_run", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCISuccess, draft.Type)
	assert.Equal(t, "CI", draft.Context.PipelineName)

	payload = mustPayload(t, map[string]any{
		"action":       "completed",
		"workflow_run": map[string]any{"conclusion": "failure"},
	})
	draft, err = adapter.MapEvent("workflow_run", payload)
	assert.Nil(t, draft)
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
}

func TestGitHubUnsupportedEventType(t *testing.T) {
	adapter := NewGitHubAdapter()
	draft, err := adapter.MapEvent("watch", map[string]any{})
	assert.Nil(t, draft)
	assert.NoError(t, err)
}
