package models

import (
	"time"
)

// ActionType enumerates the canonical, provider-agnostic activity types.
type ActionType string

const (
	ActionCodePush            ActionType = "code_push"
	ActionPullRequestCreate   ActionType = "pull_request_create"
	ActionPullRequestMerge    ActionType = "pull_request_merge"
	ActionPullRequestClose    ActionType = "pull_request_close"
	ActionCodeReviewSubmit    ActionType = "code_review_submit"
	ActionIssueCreate         ActionType = "issue_create"
	ActionIssueClose          ActionType = "issue_close"
	ActionIssueReopen         ActionType = "issue_reopen"
	ActionCommentCreate       ActionType = "comment_create"
	ActionReviewCommentCreate ActionType = "review_comment_create"
	ActionReleasePublish      ActionType = "release_publish"
	ActionCISuccess           ActionType = "ci_success"
	ActionDiscussionCreate    ActionType = "discussion_create"
	ActionDiscussionComment   ActionType = "discussion_comment"

	// ActionManualGrant is used for admin-issued XP grants; it never comes
	// from a provider adapter.
	ActionManualGrant ActionType = "manual_grant"
)

// AllActionTypes lists every provider-mappable action type (excludes manual_grant).
var AllActionTypes = []ActionType{
	ActionCodePush,
	ActionPullRequestCreate,
	ActionPullRequestMerge,
	ActionPullRequestClose,
	ActionCodeReviewSubmit,
	ActionIssueCreate,
	ActionIssueClose,
	ActionIssueReopen,
	ActionCommentCreate,
	ActionReviewCommentCreate,
	ActionReleasePublish,
	ActionCISuccess,
	ActionDiscussionCreate,
	ActionDiscussionComment,
}

type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusProcessed ActionStatus = "processed"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionContext carries the provider/repo/PR/issue identifiers of an action.
// Which fields are populated depends on GameAction.Type.
type ActionContext struct {
	Provider      string `json:"provider"`
	Repo          string `json:"repo,omitempty"`
	Branch        string `json:"branch,omitempty"`
	CommitSHA     string `json:"commit_sha,omitempty"`
	PRNumber      int    `json:"pr_number,omitempty"`
	PRTitle       string `json:"pr_title,omitempty"`
	IssueNumber   int    `json:"issue_number,omitempty"`
	IssueTitle    string `json:"issue_title,omitempty"`
	ReviewState   string `json:"review_state,omitempty"`
	ReleaseTag    string `json:"release_tag,omitempty"`
	PipelineName  string `json:"pipeline_name,omitempty"`
	Discussion    string `json:"discussion,omitempty"`
	NewBranch     bool   `json:"new_branch,omitempty"`
	DeletedBranch bool   `json:"deleted_branch,omitempty"`
	Note          string `json:"note,omitempty"` // free-form; manual grants put the reason here
}

// ActionMetrics carries the quantitative facts of an action. Which fields
// are populated depends on GameAction.Type.
type ActionMetrics struct {
	Commits          int     `json:"commits,omitempty"`
	Additions        int     `json:"additions,omitempty"`
	Deletions        int     `json:"deletions,omitempty"`
	ChangedFiles     int     `json:"changed_files,omitempty"`
	Comments         int     `json:"comments,omitempty"`
	TimeToMergeHours float64 `json:"time_to_merge_hours,omitempty"`
	Prerelease       bool    `json:"prerelease,omitempty"`
	HadAssignee      bool    `json:"had_assignee,omitempty"`
}

// GameAction is the immutable record of a normalized external event.
// Created by the webhook pipeline as `pending`; the progression engine
// transitions it to `processed` or `failed`. Rows are never deleted.
type GameAction struct {
	ID               string       `gorm:"primaryKey;type:uuid" json:"id"`
	Provider         string       `gorm:"index:idx_action_provider_external,unique;not null" json:"provider"`
	ExternalID       string       `gorm:"index:idx_action_provider_external,unique;not null" json:"external_id"` // provider-native event id
	Type             ActionType   `gorm:"type:varchar(40);index;not null" json:"type"`
	UserID           string       `gorm:"index;not null" json:"user_id"` // internal user id
	ExternalUserID   string       `json:"external_user_id"`
	ExternalUsername string       `json:"external_username,omitempty"`
	Context          ActionContext  `gorm:"serializer:json" json:"context"`
	Metrics          ActionMetrics  `gorm:"serializer:json" json:"metrics"`
	Status           ActionStatus `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	XPGained         int64        `json:"xp_gained"` // set when the action is processed
	Error            string       `json:"error,omitempty"`
	Timestamp        time.Time    `json:"timestamp"` // when the event happened at the provider
	CreatedAt        time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}
