package providers

import (
	"crypto/subtle"

	"devxp-progression-system/models"
)

// AzureDevOpsAdapter normalizes Azure DevOps service-hook events. Azure
// carries the event type and id in the body rather than in headers, and
// authenticates with a shared basic-auth credential instead of a payload
// signature.
type AzureDevOpsAdapter struct{}

func NewAzureDevOpsAdapter() AzureDevOpsAdapter {
	return AzureDevOpsAdapter{}
}

func (AzureDevOpsAdapter) Provider() string {
	return "azure"
}

// ValidateWebhook compares the Authorization header against the configured
// credential with a constant-time comparison; a length mismatch or absent
// header is invalid, never a panic.
func (AzureDevOpsAdapter) ValidateWebhook(headers map[string]string, body []byte, secret string) ValidationResult {
	payload, err := ParsePayload(body)
	if err != nil {
		return invalid("unparseable body: %v", err)
	}
	eventType := getString(payload, "eventType")
	if eventType == "" {
		return invalid("missing eventType field")
	}
	eventID := getString(payload, "id")
	if eventID == "" {
		return invalid("missing event id field")
	}
	if secret != "" {
		authHeader := headerLookup(headers, "Authorization")
		if authHeader == "" {
			return invalid("missing Authorization header")
		}
		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(secret)) != 1 {
			return invalid("credential mismatch")
		}
	}
	return ValidationResult{Valid: true, EventType: eventType, EventID: eventID}
}

// ExtractUserID walks the Azure actor fields in precedence order: the
// pusher wins over whoever closed the PR, which wins over the creator.
func (AzureDevOpsAdapter) ExtractUserID(payload map[string]any) string {
	resource := getMap(payload, "resource")
	if resource == nil {
		return ""
	}
	for _, actor := range []string{"pushedBy", "closedBy", "createdBy", "author"} {
		if id := getString(resource, actor, "id"); id != "" {
			return id
		}
	}
	return getString(resource, "comment", "author", "id")
}

func (a AzureDevOpsAdapter) MapEvent(eventType string, payload map[string]any) (*GameActionDraft, error) {
	switch eventType {
	case "git.push":
		return a.mapPush(payload)
	case "git.pullrequest.created":
		return a.mapPullRequestCreated(payload)
	case "git.pullrequest.updated":
		return a.mapPullRequestUpdated(payload)
	case "git.pullrequest.merged":
		return a.mapPullRequestMerged(payload)
	case "workitem.created":
		return a.mapWorkItemCreated(payload)
	case "ms.vss-code.git-pullrequest-comment-event":
		return a.mapPullRequestComment(payload)
	case "build.complete":
		return a.mapBuildComplete(payload)
	}
	return nil, nil
}

func (a AzureDevOpsAdapter) mapPush(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	commits := getSlice(resource, "commits")
	if len(commits) == 0 {
		return nil, &SkipError{Reason: "push without commits"}
	}

	branch := ""
	newBranch := false
	if updates := getSlice(resource, "refUpdates"); len(updates) > 0 {
		if update, ok := updates[0].(map[string]any); ok {
			branch = stripRefPrefix(getString(update, "name"))
			newBranch = getString(update, "oldObjectId") == zeroObjectID
			if getString(update, "newObjectId") == zeroObjectID {
				return nil, &SkipError{Reason: "branch deletion push"}
			}
		}
	}

	return &GameActionDraft{
		Type: models.ActionCodePush,
		Context: models.ActionContext{
			Provider:  "azure",
			Repo:      getString(resource, "repository", "name"),
			Branch:    branch,
			NewBranch: newBranch,
		},
		Metrics: models.ActionMetrics{
			Commits: len(commits),
		},
		Timestamp:        parseTime(getString(payload, "createdDate")),
		ExternalUsername: getString(resource, "pushedBy", "uniqueName"),
	}, nil
}

func (a AzureDevOpsAdapter) mapPullRequestCreated(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	if status := getString(resource, "status"); status != "" && status != "active" {
		return nil, &SkipError{Reason: "pullrequest.created with status " + status}
	}
	return &GameActionDraft{
		Type:             models.ActionPullRequestCreate,
		Context:          azurePRContext(resource),
		Timestamp:        parseTime(getString(resource, "creationDate")),
		ExternalUsername: getString(resource, "createdBy", "uniqueName"),
	}, nil
}

// mapPullRequestUpdated dispatches on the PR status: "completed" updates
// are the merge signal, "abandoned" maps to a close, and "active" updates
// (pushes to the source branch, vote changes, retargets) are skipped.
func (a AzureDevOpsAdapter) mapPullRequestUpdated(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	switch status := getString(resource, "status"); status {
	case "completed":
		return a.mapPullRequestMerged(payload)
	case "abandoned":
		return &GameActionDraft{
			Type:             models.ActionPullRequestClose,
			Context:          azurePRContext(resource),
			Timestamp:        parseTime(getString(resource, "closedDate")),
			ExternalUsername: getString(resource, "closedBy", "uniqueName"),
		}, nil
	default:
		return nil, &SkipError{Reason: "pullrequest.updated with status " + status}
	}
}

func (a AzureDevOpsAdapter) mapPullRequestMerged(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	if status := getString(resource, "status"); status != "completed" {
		return nil, &SkipError{Reason: "pullrequest.merged with status " + status}
	}
	metrics := models.ActionMetrics{}
	created := parseTime(getString(resource, "creationDate"))
	closed := parseTime(getString(resource, "closedDate"))
	if !created.IsZero() && !closed.IsZero() && closed.After(created) {
		metrics.TimeToMergeHours = closed.Sub(created).Hours()
	}
	return &GameActionDraft{
		Type:             models.ActionPullRequestMerge,
		Context:          azurePRContext(resource),
		Metrics:          metrics,
		Timestamp:        closed,
		ExternalUsername: getString(resource, "closedBy", "uniqueName"),
	}, nil
}

func (a AzureDevOpsAdapter) mapWorkItemCreated(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	return &GameActionDraft{
		Type: models.ActionIssueCreate,
		Context: models.ActionContext{
			Provider:    "azure",
			IssueNumber: getInt(resource, "id"),
			IssueTitle:  getString(resource, "fields", "System.Title"),
		},
		Timestamp: parseTime(getString(payload, "createdDate")),
	}, nil
}

func (a AzureDevOpsAdapter) mapPullRequestComment(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	pr := getMap(resource, "pullRequest")
	return &GameActionDraft{
		Type: models.ActionReviewCommentCreate,
		Context: models.ActionContext{
			Provider: "azure",
			Repo:     getString(pr, "repository", "name"),
			PRNumber: getInt(pr, "pullRequestId"),
			PRTitle:  getString(pr, "title"),
		},
		Timestamp:        parseTime(getString(resource, "comment", "publishedDate")),
		ExternalUsername: getString(resource, "comment", "author", "uniqueName"),
	}, nil
}

func (a AzureDevOpsAdapter) mapBuildComplete(payload map[string]any) (*GameActionDraft, error) {
	resource := getMap(payload, "resource")
	if status := getString(resource, "status"); status != "succeeded" {
		return nil, &SkipError{Reason: "build.complete with status " + status}
	}
	return &GameActionDraft{
		Type: models.ActionCISuccess,
		Context: models.ActionContext{
			Provider:     "azure",
			PipelineName: getString(resource, "definition", "name"),
		},
		Timestamp:        parseTime(getString(resource, "finishTime")),
		ExternalUsername: getString(resource, "requestedFor", "uniqueName"),
	}, nil
}

func azurePRContext(resource map[string]any) models.ActionContext {
	return models.ActionContext{
		Provider: "azure",
		Repo:     getString(resource, "repository", "name"),
		Branch:   stripRefPrefix(getString(resource, "sourceRefName")),
		PRNumber: getInt(resource, "pullRequestId"),
		PRTitle:  getString(resource, "title"),
	}
}

const zeroObjectID = "0000000000000000000000000000000000000000"
