package services

import (
	"fmt"

	"devxp-progression-system/models"
)

// XPBreakdown maps a bonus label to the amount it contributed.
type XPBreakdown map[string]int64

// ActionHandler is the XP strategy for one action type. Both methods are
// pure: the same context and metrics always produce the same result.
type ActionHandler interface {
	BaseXP() int64
	Bonuses(ctx models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown)
}

// ActionHandlerSet is the dispatch map from action type to handler, built
// once at startup and passed by reference.
type ActionHandlerSet struct {
	handlers map[models.ActionType]ActionHandler
}

func NewActionHandlerSet() *ActionHandlerSet {
	return &ActionHandlerSet{handlers: map[models.ActionType]ActionHandler{
		models.ActionCodePush:            pushHandler{},
		models.ActionPullRequestCreate:   prCreateHandler{},
		models.ActionPullRequestMerge:    prMergeHandler{},
		models.ActionPullRequestClose:    flatHandler{50},
		models.ActionCodeReviewSubmit:    reviewHandler{},
		models.ActionIssueCreate:         flatHandler{80},
		models.ActionIssueClose:          issueCloseHandler{},
		models.ActionIssueReopen:         flatHandler{20},
		models.ActionCommentCreate:       flatHandler{30},
		models.ActionReviewCommentCreate: flatHandler{40},
		models.ActionReleasePublish:      releaseHandler{},
		models.ActionCISuccess:           flatHandler{60},
		models.ActionDiscussionCreate:    flatHandler{60},
		models.ActionDiscussionComment:   flatHandler{25},
	}}
}

func (s *ActionHandlerSet) Get(t models.ActionType) (ActionHandler, bool) {
	h, ok := s.handlers[t]
	return h, ok
}

// ComputeXP returns base + Σbonuses for an action, plus the bonus breakdown.
func (s *ActionHandlerSet) ComputeXP(t models.ActionType, ctx models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown, error) {
	handler, ok := s.handlers[t]
	if !ok {
		return 0, nil, fmt.Errorf("no XP handler for action type %q", t)
	}
	bonus, breakdown := handler.Bonuses(ctx, m)
	return handler.BaseXP() + bonus, breakdown, nil
}

// flatHandler awards a fixed amount with no bonuses.
type flatHandler struct {
	base int64
}

func (h flatHandler) BaseXP() int64 { return h.base }

func (flatHandler) Bonuses(models.ActionContext, models.ActionMetrics) (int64, XPBreakdown) {
	return 0, XPBreakdown{}
}

type pushHandler struct{}

func (pushHandler) BaseXP() int64 { return 120 }

func (pushHandler) Bonuses(_ models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if m.Commits >= 5 {
		breakdown["multi_commit"] = 30
	}
	if m.ChangedFiles > 10 {
		breakdown["wide_change"] = 25
	}
	if m.Additions+m.Deletions > 500 {
		breakdown["big_diff"] = 50
	}
	return breakdown.total(), breakdown
}

type prCreateHandler struct{}

func (prCreateHandler) BaseXP() int64 { return 150 }

func (prCreateHandler) Bonuses(_ models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if m.Additions+m.Deletions > 500 {
		breakdown["big_diff"] = 40
	}
	return breakdown.total(), breakdown
}

type prMergeHandler struct{}

func (prMergeHandler) BaseXP() int64 { return 300 }

func (prMergeHandler) Bonuses(_ models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if m.TimeToMergeHours > 0 && m.TimeToMergeHours < 24 {
		breakdown["fast_merge"] = 50
	}
	if m.ChangedFiles > 20 {
		breakdown["wide_change"] = 40
	}
	return breakdown.total(), breakdown
}

type reviewHandler struct{}

func (reviewHandler) BaseXP() int64 { return 200 }

func (reviewHandler) Bonuses(ctx models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if m.Comments >= 3 {
		breakdown["thorough_review"] = 60
	}
	if ctx.ReviewState == "changes_requested" || ctx.ReviewState == "needs_work" {
		breakdown["critical_eye"] = 20
	}
	return breakdown.total(), breakdown
}

type issueCloseHandler struct{}

func (issueCloseHandler) BaseXP() int64 { return 100 }

func (issueCloseHandler) Bonuses(_ models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if m.HadAssignee {
		breakdown["owned_issue"] = 20
	}
	return breakdown.total(), breakdown
}

type releaseHandler struct{}

func (releaseHandler) BaseXP() int64 { return 400 }

func (releaseHandler) Bonuses(_ models.ActionContext, m models.ActionMetrics) (int64, XPBreakdown) {
	breakdown := XPBreakdown{}
	if !m.Prerelease {
		breakdown["stable_release"] = 50
	}
	return breakdown.total(), breakdown
}

func (b XPBreakdown) total() int64 {
	var sum int64
	for _, v := range b {
		sum += v
	}
	return sum
}
