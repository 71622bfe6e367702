package providers

import (
	"devxp-progression-system/models"
)

// BitbucketServerAdapter normalizes self-hosted Bitbucket (Data Center)
// webhooks. Same X-Event-Key convention as Cloud, but deliveries are
// identified by X-Request-Id and signed in X-Hub-Signature.
type BitbucketServerAdapter struct{}

func NewBitbucketServerAdapter() BitbucketServerAdapter {
	return BitbucketServerAdapter{}
}

func (BitbucketServerAdapter) Provider() string {
	return "bitbucket-server"
}

func (BitbucketServerAdapter) ValidateWebhook(headers map[string]string, body []byte, secret string) ValidationResult {
	eventType := headerLookup(headers, "X-Event-Key")
	if eventType == "" {
		return invalid("missing X-Event-Key header")
	}
	eventID := headerLookup(headers, "X-Request-Id")
	if eventID == "" {
		return invalid("missing X-Request-Id header")
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

func (BitbucketServerAdapter) ExtractUserID(payload map[string]any) string {
	if id := getString(payload, "actor", "id"); id != "" {
		return id
	}
	return getString(payload, "actor", "slug")
}

func (a BitbucketServerAdapter) MapEvent(eventType string, payload map[string]any) (*GameActionDraft, error) {
	switch eventType {
	case "repo:refs_changed":
		return a.mapRefsChanged(payload)
	case "pr:opened":
		return a.mapPullRequest(payload, models.ActionPullRequestCreate)
	case "pr:merged":
		return a.mapPullRequest(payload, models.ActionPullRequestMerge)
	case "pr:declined":
		return a.mapPullRequest(payload, models.ActionPullRequestClose)
	case "pr:reviewed:approved":
		return a.mapReview(payload, "approved")
	case "pr:reviewed:needs_work":
		return a.mapReview(payload, "needs_work")
	case "pr:comment:added":
		return a.mapPRComment(payload)
	}
	return nil, nil
}

func (a BitbucketServerAdapter) mapRefsChanged(payload map[string]any) (*GameActionDraft, error) {
	changes := getSlice(payload, "changes")
	if len(changes) == 0 {
		return nil, &SkipError{Reason: "refs_changed without changes"}
	}

	branch := ""
	newBranch := false
	updates := 0
	for _, c := range changes {
		change, ok := c.(map[string]any)
		if !ok {
			continue
		}
		switch getString(change, "type") {
		case "DELETE":
			continue
		case "ADD":
			newBranch = true
		}
		updates++
		if branch == "" {
			branch = getString(change, "ref", "displayId")
		}
	}
	if updates == 0 {
		return nil, &SkipError{Reason: "refs_changed with only deletions"}
	}

	return &GameActionDraft{
		Type: models.ActionCodePush,
		Context: models.ActionContext{
			Provider:  "bitbucket-server",
			Repo:      bbServerRepo(getMap(payload, "repository")),
			Branch:    branch,
			NewBranch: newBranch,
		},
		Metrics: models.ActionMetrics{
			// Refs-changed payloads carry ref updates, not commit lists;
			// one update per ref is the closest available commit count.
			Commits: updates,
		},
		Timestamp:        parseTime(getString(payload, "date")),
		ExternalUsername: getString(payload, "actor", "name"),
	}, nil
}

func (a BitbucketServerAdapter) mapPullRequest(payload map[string]any, actionType models.ActionType) (*GameActionDraft, error) {
	pr := getMap(payload, "pullRequest")
	if pr == nil {
		return nil, &SkipError{Reason: "pr event without pullRequest object"}
	}
	metrics := models.ActionMetrics{}
	timestamp := parseTime(getString(payload, "date"))
	if actionType == models.ActionPullRequestMerge {
		if createdMillis := getInt(pr, "createdDate"); createdMillis > 0 {
			closedMillis := getInt(pr, "closedDate")
			if closedMillis > createdMillis {
				metrics.TimeToMergeHours = float64(closedMillis-createdMillis) / 1000 / 3600
			}
		}
	}
	return &GameActionDraft{
		Type: actionType,
		Context: models.ActionContext{
			Provider: "bitbucket-server",
			Repo:     bbServerRepo(getMap(pr, "toRef", "repository")),
			Branch:   getString(pr, "fromRef", "displayId"),
			PRNumber: getInt(pr, "id"),
			PRTitle:  getString(pr, "title"),
		},
		Metrics:          metrics,
		Timestamp:        timestamp,
		ExternalUsername: getString(payload, "actor", "name"),
	}, nil
}

func (a BitbucketServerAdapter) mapReview(payload map[string]any, state string) (*GameActionDraft, error) {
	pr := getMap(payload, "pullRequest")
	return &GameActionDraft{
		Type: models.ActionCodeReviewSubmit,
		Context: models.ActionContext{
			Provider:    "bitbucket-server",
			Repo:        bbServerRepo(getMap(pr, "toRef", "repository")),
			PRNumber:    getInt(pr, "id"),
			PRTitle:     getString(pr, "title"),
			ReviewState: state,
		},
		Timestamp:        parseTime(getString(payload, "date")),
		ExternalUsername: getString(payload, "actor", "name"),
	}, nil
}

func (a BitbucketServerAdapter) mapPRComment(payload map[string]any) (*GameActionDraft, error) {
	pr := getMap(payload, "pullRequest")
	return &GameActionDraft{
		Type: models.ActionReviewCommentCreate,
		Context: models.ActionContext{
			Provider: "bitbucket-server",
			Repo:     bbServerRepo(getMap(pr, "toRef", "repository")),
			PRNumber: getInt(pr, "id"),
			PRTitle:  getString(pr, "title"),
		},
		Timestamp:        parseTime(getString(payload, "date")),
		ExternalUsername: getString(payload, "actor", "name"),
	}, nil
}

// bbServerRepo renders "PROJECT/repo" from a Bitbucket Server repository
// object.
func bbServerRepo(repo map[string]any) string {
	if repo == nil {
		return ""
	}
	project := getString(repo, "project", "key")
	slug := getString(repo, "slug")
	if project == "" {
		return slug
	}
	return project + "/" + slug
}
