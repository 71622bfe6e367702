package providers

import (
	"time"

	"devxp-progression-system/models"
)

// GitHubAdapter normalizes GitHub-style webhooks. Deliveries are identified
// by X-GitHub-Delivery and signed with an hmac-sha256 over the raw body in
// X-Hub-Signature-256.
type GitHubAdapter struct{}

func NewGitHubAdapter() GitHubAdapter {
	return GitHubAdapter{}
}

func (GitHubAdapter) Provider() string {
	return "github"
}

func (GitHubAdapter) ValidateWebhook(headers map[string]string, body []byte, secret string) ValidationResult {
	eventType := headerLookup(headers, "X-GitHub-Event")
	if eventType == "" {
		return invalid("missing X-GitHub-Event header")
	}
	eventID := headerLookup(headers, "X-GitHub-Delivery")
	if eventID == "" {
		return invalid("missing X-GitHub-Delivery header")
	}
	if secret != "" {
		signature := headerLookup(headers, "X-Hub-Signature-256")
		if signature == "" {
			return invalid("missing X-Hub-Signature-256 header")
		}
		if !verifyHMACSignature(secret, body, signature) {
			return invalid("signature mismatch")
		}
	}
	return ValidationResult{Valid: true, EventType: eventType, EventID: eventID}
}

// ExtractUserID returns the numeric sender id; GitHub sets sender on every
// event type. Falls back to the login for payloads that omit the id.
func (GitHubAdapter) ExtractUserID(payload map[string]any) string {
	if id := getString(payload, "sender", "id"); id != "" {
		return id
	}
	return getString(payload, "sender", "login")
}

func (a GitHubAdapter) MapEvent(eventType string, payload map[string]any) (*GameActionDraft, error) {
	switch eventType {
	case "push":
		return a.mapPush(payload)
	case "pull_request":
		return a.mapPullRequest(payload)
	case "pull_request_review":
		return a.mapReview(payload)
	case "issues":
		return a.mapIssue(payload)
	case "issue_comment":
		return a.mapComment(payload, models.ActionCommentCreate)
	case "pull_request_review_comment":
		return a.mapComment(payload, models.ActionReviewCommentCreate)
	case "release":
		return a.mapRelease(payload)
	case "workflow_run":
		return a.mapWorkflowRun(payload)
	case "discussion":
		return a.mapDiscussion(payload)
	case "discussion_comment":
		return a.mapDiscussionComment(payload)
	}
	return nil, nil
}

func (a GitHubAdapter) mapPush(payload map[string]any) (*GameActionDraft, error) {
	if getBool(payload, "deleted") {
		return nil, &SkipError{Reason: "branch deletion push"}
	}
	commits := getSlice(payload, "commits")
	created := getBool(payload, "created")
	if len(commits) == 0 && !created {
		return nil, &SkipError{Reason: "push without commits"}
	}

	changedFiles := map[string]struct{}{}
	for _, c := range commits {
		commit, ok := c.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"added", "removed", "modified"} {
			if files, ok := commit[key].([]any); ok {
				for _, f := range files {
					if name := asString(f); name != "" {
						changedFiles[name] = struct{}{}
					}
				}
			}
		}
	}

	return &GameActionDraft{
		Type: models.ActionCodePush,
		Context: models.ActionContext{
			Provider:  "github",
			Repo:      getString(payload, "repository", "full_name"),
			Branch:    stripRefPrefix(getString(payload, "ref")),
			CommitSHA: getString(payload, "after"),
			NewBranch: created,
		},
		Metrics: models.ActionMetrics{
			Commits:      len(commits),
			ChangedFiles: len(changedFiles),
		},
		Timestamp:        parseTime(getString(payload, "head_commit", "timestamp")),
		ExternalUsername: getString(payload, "pusher", "name"),
	}, nil
}

func (a GitHubAdapter) mapPullRequest(payload map[string]any) (*GameActionDraft, error) {
	action := getString(payload, "action")
	pr := getMap(payload, "pull_request")
	if pr == nil {
		return nil, &SkipError{Reason: "pull_request event without pull_request object"}
	}

	var actionType models.ActionType
	var timestamp time.Time
	metrics := models.ActionMetrics{
		Additions:    getInt(pr, "additions"),
		Deletions:    getInt(pr, "deletions"),
		ChangedFiles: getInt(pr, "changed_files"),
		Comments:     getInt(pr, "comments"),
	}

	switch action {
	case "opened":
		actionType = models.ActionPullRequestCreate
		timestamp = parseTime(getString(pr, "created_at"))
	case "closed":
		if getBool(pr, "merged") {
			actionType = models.ActionPullRequestMerge
			created := parseTime(getString(pr, "created_at"))
			merged := parseTime(getString(pr, "merged_at"))
			if !created.IsZero() && !merged.IsZero() && merged.After(created) {
				metrics.TimeToMergeHours = merged.Sub(created).Hours()
			}
			timestamp = merged
		} else {
			actionType = models.ActionPullRequestClose
			timestamp = parseTime(getString(pr, "closed_at"))
		}
	default:
		// synchronize, edited, labeled, review_requested, ... are valid but
		// carry no XP.
		return nil, &SkipError{Reason: "pull_request action " + action}
	}

	return &GameActionDraft{
		Type: actionType,
		Context: models.ActionContext{
			Provider: "github",
			Repo:     getString(payload, "repository", "full_name"),
			Branch:   getString(pr, "head", "ref"),
			PRNumber: getInt(pr, "number"),
			PRTitle:  getString(pr, "title"),
		},
		Metrics:          metrics,
		Timestamp:        timestamp,
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapReview(payload map[string]any) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "submitted" {
		return nil, &SkipError{Reason: "pull_request_review action " + action}
	}
	review := getMap(payload, "review")
	return &GameActionDraft{
		Type: models.ActionCodeReviewSubmit,
		Context: models.ActionContext{
			Provider:    "github",
			Repo:        getString(payload, "repository", "full_name"),
			PRNumber:    getInt(payload, "pull_request", "number"),
			PRTitle:     getString(payload, "pull_request", "title"),
			ReviewState: getString(review, "state"),
		},
		Metrics: models.ActionMetrics{
			Comments: getInt(payload, "pull_request", "review_comments"),
		},
		Timestamp:        parseTime(getString(review, "submitted_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapIssue(payload map[string]any) (*GameActionDraft, error) {
	action := getString(payload, "action")
	issue := getMap(payload, "issue")
	if issue == nil {
		return nil, &SkipError{Reason: "issues event without issue object"}
	}

	var actionType models.ActionType
	switch action {
	case "opened":
		actionType = models.ActionIssueCreate
	case "closed":
		actionType = models.ActionIssueClose
	case "reopened":
		actionType = models.ActionIssueReopen
	default:
		return nil, &SkipError{Reason: "issues action " + action}
	}

	return &GameActionDraft{
		Type: actionType,
		Context: models.ActionContext{
			Provider:    "github",
			Repo:        getString(payload, "repository", "full_name"),
			IssueNumber: getInt(issue, "number"),
			IssueTitle:  getString(issue, "title"),
		},
		Metrics: models.ActionMetrics{
			Comments:    getInt(issue, "comments"),
			HadAssignee: getMap(issue, "assignee") != nil,
		},
		Timestamp:        parseTime(getString(issue, "updated_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapComment(payload map[string]any, actionType models.ActionType) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "created" {
		return nil, &SkipError{Reason: "comment action " + action}
	}
	ctx := models.ActionContext{
		Provider: "github",
		Repo:     getString(payload, "repository", "full_name"),
	}
	if n := getInt(payload, "issue", "number"); n != 0 {
		ctx.IssueNumber = n
	}
	if n := getInt(payload, "pull_request", "number"); n != 0 {
		ctx.PRNumber = n
	}
	return &GameActionDraft{
		Type:             actionType,
		Context:          ctx,
		Timestamp:        parseTime(getString(payload, "comment", "created_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapRelease(payload map[string]any) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "published" {
		return nil, &SkipError{Reason: "release action " + action}
	}
	release := getMap(payload, "release")
	return &GameActionDraft{
		Type: models.ActionReleasePublish,
		Context: models.ActionContext{
			Provider:   "github",
			Repo:       getString(payload, "repository", "full_name"),
			ReleaseTag: getString(release, "tag_name"),
		},
		Metrics: models.ActionMetrics{
			Prerelease: getBool(release, "prerelease"),
		},
		Timestamp:        parseTime(getString(release, "published_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapWorkflowRun(payload map[string]any) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "completed" {
		return nil, &SkipError{Reason: "workflow_run action " + action}
	}
	run := getMap(payload, "workflow_run")
	if conclusion := getString(run, "conclusion"); conclusion != "success" {
		return nil, &SkipError{Reason: "workflow_run conclusion " + conclusion}
	}
	return &GameActionDraft{
		Type: models.ActionCISuccess,
		Context: models.ActionContext{
			Provider:     "github",
			Repo:         getString(payload, "repository", "full_name"),
			Branch:       getString(run, "head_branch"),
			PipelineName: getString(run, "name"),
		},
		Timestamp:        parseTime(getString(run, "updated_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapDiscussion(payload map[string]any) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "created" {
		return nil, &SkipError{Reason: "discussion action " + action}
	}
	return &GameActionDraft{
		Type: models.ActionDiscussionCreate,
		Context: models.ActionContext{
			Provider:   "github",
			Repo:       getString(payload, "repository", "full_name"),
			Discussion: getString(payload, "discussion", "title"),
		},
		Timestamp:        parseTime(getString(payload, "discussion", "created_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}

func (a GitHubAdapter) mapDiscussionComment(payload map[string]any) (*GameActionDraft, error) {
	if action := getString(payload, "action"); action != "created" {
		return nil, &SkipError{Reason: "discussion_comment action " + action}
	}
	return &GameActionDraft{
		Type: models.ActionDiscussionComment,
		Context: models.ActionContext{
			Provider:   "github",
			Repo:       getString(payload, "repository", "full_name"),
			Discussion: getString(payload, "discussion", "title"),
		},
		Timestamp:        parseTime(getString(payload, "comment", "created_at")),
		ExternalUsername: getString(payload, "sender", "login"),
	}, nil
}
