package providers

import (
	"devxp-progression-system/models"
)

// BitbucketAdapter normalizes Bitbucket Cloud webhooks. Events are keyed by
// X-Event-Key, identified by X-Request-UUID, and optionally signed with an
// hmac-sha256 in X-Hub-Signature.
type BitbucketAdapter struct{}

func NewBitbucketAdapter() BitbucketAdapter {
	return BitbucketAdapter{}
}

func (BitbucketAdapter) Provider() string {
	return "bitbucket"
}

func (BitbucketAdapter) ValidateWebhook(headers map[string]string, body []byte, secret string) ValidationResult {
	eventType := headerLookup(headers, "X-Event-Key")
	if eventType == "" {
		return invalid("missing X-Event-Key header")
	}
	eventID := headerLookup(headers, "X-Request-UUID")
	if eventID == "" {
		eventID = headerLookup(headers, "X-Hook-UUID")
	}
	if eventID == "" {
		return invalid("missing X-Request-UUID header")
	}
	if secret != "" {
		signature := headerLookup(headers, "X-Hub-Signature")
		if signature == "" {
			return invalid("missing X-Hub-Signature header")
		}
		if !verifyHMACSignature(secret, body, signature) {
			return invalid("signature mismatch")
		}
	}
	return ValidationResult{Valid: true, EventType: eventType, EventID: eventID}
}

func (BitbucketAdapter) ExtractUserID(payload map[string]any) string {
	actor := getMap(payload, "actor")
	if actor == nil {
		return ""
	}
	if id := getString(actor, "uuid"); id != "" {
		return id
	}
	if id := getString(actor, "account_id"); id != "" {
		return id
	}
	return getString(actor, "nickname")
}

func (a BitbucketAdapter) MapEvent(eventType string, payload map[string]any) (*GameActionDraft, error) {
	switch eventType {
	case "repo:push":
		return a.mapPush(payload)
	case "pullrequest:created":
		return a.mapPullRequest(payload, models.ActionPullRequestCreate)
	case "pullrequest:fulfilled":
		return a.mapPullRequest(payload, models.ActionPullRequestMerge)
	case "pullrequest:rejected":
		return a.mapPullRequest(payload, models.ActionPullRequestClose)
	case "pullrequest:approved":
		return a.mapApproval(payload)
	case "pullrequest:comment_created":
		return a.mapPRComment(payload)
	case "issue:created":
		return a.mapIssue(payload)
	case "issue:comment_created":
		return a.mapIssueComment(payload)
	}
	return nil, nil
}

func (a BitbucketAdapter) mapPush(payload map[string]any) (*GameActionDraft, error) {
	changes := getSlice(payload, "push", "changes")
	if len(changes) == 0 {
		return nil, &SkipError{Reason: "push without changes"}
	}

	commits := 0
	branch := ""
	newBranch := false
	sawDelete := false
	for _, c := range changes {
		change, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if getBool(change, "closed") && getMap(change, "new") == nil {
			sawDelete = true
			continue
		}
		commits += len(getSlice(change, "commits"))
		if branch == "" {
			branch = getString(change, "new", "name")
		}
		if getBool(change, "created") {
			newBranch = true
		}
	}
	if commits == 0 && !newBranch {
		if sawDelete {
			return nil, &SkipError{Reason: "branch deletion push"}
		}
		return nil, &SkipError{Reason: "push without commits"}
	}

	return &GameActionDraft{
		Type: models.ActionCodePush,
		Context: models.ActionContext{
			Provider:  "bitbucket",
			Repo:      getString(payload, "repository", "full_name"),
			Branch:    branch,
			NewBranch: newBranch,
		},
		Metrics: models.ActionMetrics{
			Commits: commits,
		},
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}

func (a BitbucketAdapter) mapPullRequest(payload map[string]any, actionType models.ActionType) (*GameActionDraft, error) {
	pr := getMap(payload, "pullrequest")
	if pr == nil {
		return nil, &SkipError{Reason: "pullrequest event without pullrequest object"}
	}
	metrics := models.ActionMetrics{
		Comments: getInt(pr, "comment_count"),
	}
	timestamp := parseTime(getString(pr, "updated_on"))
	if actionType == models.ActionPullRequestMerge {
		created := parseTime(getString(pr, "created_on"))
		if !created.IsZero() && !timestamp.IsZero() && timestamp.After(created) {
			metrics.TimeToMergeHours = timestamp.Sub(created).Hours()
		}
	}
	return &GameActionDraft{
		Type: actionType,
		Context: models.ActionContext{
			Provider: "bitbucket",
			Repo:     getString(payload, "repository", "full_name"),
			Branch:   getString(pr, "source", "branch", "name"),
			PRNumber: getInt(pr, "id"),
			PRTitle:  getString(pr, "title"),
		},
		Metrics:          metrics,
		Timestamp:        timestamp,
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}

// mapApproval treats a PR approval as a submitted review; Bitbucket Cloud
// has no separate review object.
func (a BitbucketAdapter) mapApproval(payload map[string]any) (*GameActionDraft, error) {
	pr := getMap(payload, "pullrequest")
	return &GameActionDraft{
		Type: models.ActionCodeReviewSubmit,
		Context: models.ActionContext{
			Provider:    "bitbucket",
			Repo:        getString(payload, "repository", "full_name"),
			PRNumber:    getInt(pr, "id"),
			PRTitle:     getString(pr, "title"),
			ReviewState: "approved",
		},
		Metrics: models.ActionMetrics{
			Comments: getInt(pr, "comment_count"),
		},
		Timestamp:        parseTime(getString(payload, "approval", "date")),
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}

func (a BitbucketAdapter) mapPRComment(payload map[string]any) (*GameActionDraft, error) {
	pr := getMap(payload, "pullrequest")
	return &GameActionDraft{
		Type: models.ActionReviewCommentCreate,
		Context: models.ActionContext{
			Provider: "bitbucket",
			Repo:     getString(payload, "repository", "full_name"),
			PRNumber: getInt(pr, "id"),
			PRTitle:  getString(pr, "title"),
		},
		Timestamp:        parseTime(getString(payload, "comment", "created_on")),
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}

func (a BitbucketAdapter) mapIssue(payload map[string]any) (*GameActionDraft, error) {
	issue := getMap(payload, "issue")
	return &GameActionDraft{
		Type: models.ActionIssueCreate,
		Context: models.ActionContext{
			Provider:    "bitbucket",
			Repo:        getString(payload, "repository", "full_name"),
			IssueNumber: getInt(issue, "id"),
			IssueTitle:  getString(issue, "title"),
		},
		Timestamp:        parseTime(getString(issue, "created_on")),
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}

func (a BitbucketAdapter) mapIssueComment(payload map[string]any) (*GameActionDraft, error) {
	issue := getMap(payload, "issue")
	return &GameActionDraft{
		Type: models.ActionCommentCreate,
		Context: models.ActionContext{
			Provider:    "bitbucket",
			Repo:        getString(payload, "repository", "full_name"),
			IssueNumber: getInt(issue, "id"),
			IssueTitle:  getString(issue, "title"),
		},
		Timestamp:        parseTime(getString(payload, "comment", "created_on")),
		ExternalUsername: getString(payload, "actor", "nickname"),
	}, nil
}
