// Package webhook applies GitHub webhook deliveries to the local mirror.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/api"
	"github.com/wesm/collabhub/internal/models"
)

// Mirror creates and refreshes pull request and issue mirrors
type Mirror interface {
	MirrorPullRequest(ctx context.Context, repo *models.Repository, gh *github.PullRequest) (*models.PullRequest, bool, error)
	RefreshPullRequest(ctx context.Context, repo *models.Repository, gh *github.PullRequest) (*models.PullRequest, error)
	MirrorIssue(ctx context.Context, repo *models.Repository, gh *github.Issue) (*models.Issue, bool, error)
	RefreshIssue(ctx context.Context, repo *models.Repository, gh *github.Issue) (*models.Issue, error)
}

// Store is the part of the mirror store deliveries read and append to
type Store interface {
	GetRepositoryByGitHubID(ctx context.Context, githubID int64) (*models.Repository, error)
	GetPullRequestByGitHubID(ctx context.Context, githubID int64) (*models.PullRequest, error)
	GetPullRequestByNumber(ctx context.Context, repoID string, number int) (*models.PullRequest, error)
	GetIssueByGitHubID(ctx context.Context, githubID int64) (*models.Issue, error)
	AddComment(ctx context.Context, comment *models.Comment) (bool, error)
	AddReview(ctx context.Context, review *models.Review) (bool, error)
}

// Notifier is told about entities that deliveries create
type Notifier interface {
	PullRequestOpened(ctx context.Context, repo *models.Repository, pr *models.PullRequest)
	IssueOpened(ctx context.Context, repo *models.Repository, issue *models.Issue)
	CommentAdded(ctx context.Context, repo *models.Repository, comment *models.Comment)
}

// Handler verifies and applies webhook deliveries
type Handler struct {
	secret        []byte
	allowUnsigned bool
	mirror        Mirror
	store         Store
	notifier      Notifier
}

// NewHandler creates a webhook handler. notifier may be nil.
func NewHandler(cfg config.WebhookConfig, mirror Mirror, store Store, notifier Notifier) *Handler {
	return &Handler{
		secret:        []byte(cfg.Secret),
		allowUnsigned: cfg.AllowUnsigned,
		mirror:        mirror,
		store:         store,
		notifier:      notifier,
	}
}

// Verify checks the X-Hub-Signature-256 header of r and returns the body.
// Without a configured secret, deliveries are accepted only when unsigned
// deliveries are allowed.
func (h *Handler) Verify(r *http.Request) ([]byte, error) {
	if len(h.secret) == 0 {
		if !h.allowUnsigned {
			return nil, fmt.Errorf("%w: no webhook secret configured", models.ErrInvalidSignature)
		}
		body, err := github.ValidatePayload(r, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		return body, nil
	}

	body, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	return body, nil
}

func handled(eventType string) bool {
	switch eventType {
	case "ping", "pull_request", "issues", "issue_comment", "pull_request_review_comment", "pull_request_review":
		return true
	}
	return false
}

// Handle applies one delivery. Unknown event types, unknown repositories and
// entities that were never mirrored are ignored.
func (h *Handler) Handle(ctx context.Context, eventType string, payload []byte) error {
	if !handled(eventType) {
		log.Printf("Ignoring %q webhook event", eventType)
		return nil
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", models.ErrValidation, eventType, err)
	}

	switch e := event.(type) {
	case *github.PingEvent:
		return nil
	case *github.PullRequestEvent:
		return h.pullRequest(ctx, e)
	case *github.IssuesEvent:
		return h.issue(ctx, e)
	case *github.IssueCommentEvent:
		return h.issueComment(ctx, e)
	case *github.PullRequestReviewCommentEvent:
		return h.reviewComment(ctx, e)
	case *github.PullRequestReviewEvent:
		return h.review(ctx, e)
	}
	return nil
}

// repository returns the mirror of gh, or nil when it was never synced
func (h *Handler) repository(ctx context.Context, gh *github.Repository) (*models.Repository, error) {
	repo, err := h.store.GetRepositoryByGitHubID(ctx, gh.GetID())
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("Dropping webhook for unknown repository %s", gh.GetFullName())
		return nil, nil
	}
	return repo, err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

func (h *Handler) pullRequest(ctx context.Context, e *github.PullRequestEvent) error {
	repo, err := h.repository(ctx, e.GetRepo())
	if repo == nil || err != nil {
		return err
	}

	switch e.GetAction() {
	case "opened":
		pr, created, err := h.mirror.MirrorPullRequest(ctx, repo, e.GetPullRequest())
		if err != nil {
			return err
		}
		if created && h.notifier != nil {
			h.notifier.PullRequestOpened(ctx, repo, pr)
		}
	case "closed", "reopened", "synchronize", "edited":
		_, err := h.mirror.RefreshPullRequest(ctx, repo, e.GetPullRequest())
		return ignoreNotFound(err)
	}
	return nil
}

func (h *Handler) issue(ctx context.Context, e *github.IssuesEvent) error {
	repo, err := h.repository(ctx, e.GetRepo())
	if repo == nil || err != nil {
		return err
	}

	switch e.GetAction() {
	case "opened":
		issue, created, err := h.mirror.MirrorIssue(ctx, repo, e.GetIssue())
		if err != nil {
			return err
		}
		if created && h.notifier != nil {
			h.notifier.IssueOpened(ctx, repo, issue)
		}
	case "closed", "reopened", "edited":
		_, err := h.mirror.RefreshIssue(ctx, repo, e.GetIssue())
		return ignoreNotFound(err)
	}
	return nil
}

func (h *Handler) issueComment(ctx context.Context, e *github.IssueCommentEvent) error {
	if e.GetAction() != "created" {
		return nil
	}
	repo, err := h.repository(ctx, e.GetRepo())
	if repo == nil || err != nil {
		return err
	}

	// Comments on pull requests arrive with the pull request as an issue
	var comment *models.Comment
	if e.GetIssue().IsPullRequest() {
		pr, err := h.store.GetPullRequestByNumber(ctx, repo.ID, e.GetIssue().GetNumber())
		if err != nil {
			return ignoreNotFound(err)
		}
		comment = api.ConvertGitHubComment(e.GetComment(), models.ParentPullRequest, pr.ID)
	} else {
		issue, err := h.store.GetIssueByGitHubID(ctx, e.GetIssue().GetID())
		if err != nil {
			return ignoreNotFound(err)
		}
		comment = api.ConvertGitHubComment(e.GetComment(), models.ParentIssue, issue.ID)
	}

	return h.addComment(ctx, repo, comment)
}

func (h *Handler) reviewComment(ctx context.Context, e *github.PullRequestReviewCommentEvent) error {
	if e.GetAction() != "created" {
		return nil
	}
	repo, err := h.repository(ctx, e.GetRepo())
	if repo == nil || err != nil {
		return err
	}

	pr, err := h.store.GetPullRequestByGitHubID(ctx, e.GetPullRequest().GetID())
	if err != nil {
		return ignoreNotFound(err)
	}
	return h.addComment(ctx, repo, api.ConvertGitHubReviewComment(e.GetComment(), pr.ID))
}

func (h *Handler) addComment(ctx context.Context, repo *models.Repository, comment *models.Comment) error {
	added, err := h.store.AddComment(ctx, comment)
	if err != nil {
		return err
	}
	if added && h.notifier != nil {
		h.notifier.CommentAdded(ctx, repo, comment)
	}
	return nil
}

func (h *Handler) review(ctx context.Context, e *github.PullRequestReviewEvent) error {
	if e.GetAction() != "submitted" {
		return nil
	}
	repo, err := h.repository(ctx, e.GetRepo())
	if repo == nil || err != nil {
		return err
	}

	pr, err := h.store.GetPullRequestByGitHubID(ctx, e.GetPullRequest().GetID())
	if err != nil {
		return ignoreNotFound(err)
	}
	_, err = h.store.AddReview(ctx, api.ConvertGitHubReview(e.GetReview(), pr.ID))
	return err
}
