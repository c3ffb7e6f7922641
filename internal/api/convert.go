package api

import (
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/collabhub/internal/models"
)

// ConvertGitHubRepository converts a GitHub repository to our model.
// Owner and local settings are left for the caller.
func ConvertGitHubRepository(repo *github.Repository) *models.Repository {
	return &models.Repository{
		GitHubID:    repo.GetID(),
		Name:        repo.GetName(),
		FullName:    repo.GetFullName(),
		Private:     repo.GetPrivate(),
		Description: repo.GetDescription(),
		Language:    repo.GetLanguage(),
		Stars:       repo.GetStargazersCount(),
		Watchers:    repo.GetWatchersCount(),
		Forks:       repo.GetForksCount(),
		UpdatedAt:   repo.GetUpdatedAt().Time,
	}
}

// ConvertGitHubPullRequest converts a GitHub pull request to our model.
// A closed pull request with a merge time is reported as merged.
func ConvertGitHubPullRequest(pr *github.PullRequest) *models.PullRequest {
	state := models.PRState(pr.GetState())
	if pr.GetMerged() || pr.MergedAt != nil {
		state = models.PRStateMerged
	}

	assignees := make([]string, 0, len(pr.Assignees))
	for _, u := range pr.Assignees {
		assignees = append(assignees, u.GetLogin())
	}
	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, u := range pr.RequestedReviewers {
		reviewers = append(reviewers, u.GetLogin())
	}

	return &models.PullRequest{
		GitHubID:     pr.GetID(),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		State:        state,
		AuthorLogin:  pr.GetUser().GetLogin(),
		AuthorAvatar: pr.GetUser().GetAvatarURL(),
		Assignees:    assignees,
		Reviewers:    reviewers,
		Labels:       labelNames(pr.Labels),
		Branch: models.Branch{
			Head: pr.GetHead().GetRef(),
			Base: pr.GetBase().GetRef(),
		},
		Stats: models.ChangeStats{
			Additions:    pr.GetAdditions(),
			Deletions:    pr.GetDeletions(),
			ChangedFiles: pr.GetChangedFiles(),
		},
		HTMLURL:   pr.GetHTMLURL(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
}

// ConvertGitHubIssue converts a GitHub issue to our model
func ConvertGitHubIssue(issue *github.Issue) *models.Issue {
	assignees := make([]string, 0, len(issue.Assignees))
	for _, u := range issue.Assignees {
		assignees = append(assignees, u.GetLogin())
	}

	return &models.Issue{
		GitHubID:     issue.GetID(),
		Number:       issue.GetNumber(),
		Title:        issue.GetTitle(),
		Body:         issue.GetBody(),
		State:        models.IssueState(issue.GetState()),
		AuthorLogin:  issue.GetUser().GetLogin(),
		AuthorAvatar: issue.GetUser().GetAvatarURL(),
		Assignees:    assignees,
		Labels:       labelNames(issue.Labels),
		HTMLURL:      issue.GetHTMLURL(),
		CreatedAt:    issue.GetCreatedAt().Time,
		UpdatedAt:    issue.GetUpdatedAt().Time,
	}
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

// ConvertGitHubComment converts an issue or pull request conversation comment
func ConvertGitHubComment(comment *github.IssueComment, parentType, parentID string) *models.Comment {
	return &models.Comment{
		GitHubID:    comment.GetID(),
		Kind:        models.CommentConversation,
		ParentType:  parentType,
		ParentID:    parentID,
		AuthorLogin: comment.GetUser().GetLogin(),
		Body:        comment.GetBody(),
		HTMLURL:     comment.GetHTMLURL(),
		CreatedAt:   comment.GetCreatedAt().Time,
	}
}

// ConvertGitHubReviewComment converts a pull request diff comment
func ConvertGitHubReviewComment(comment *github.PullRequestComment, pullRequestID string) *models.Comment {
	return &models.Comment{
		GitHubID:    comment.GetID(),
		Kind:        models.CommentReview,
		ParentType:  models.ParentPullRequest,
		ParentID:    pullRequestID,
		AuthorLogin: comment.GetUser().GetLogin(),
		Body:        comment.GetBody(),
		HTMLURL:     comment.GetHTMLURL(),
		CreatedAt:   comment.GetCreatedAt().Time,
	}
}

// ConvertGitHubReview converts a pull request review. States other than
// approved and changes requested are recorded as comments.
func ConvertGitHubReview(review *github.PullRequestReview, pullRequestID string) *models.Review {
	state := models.ReviewState(strings.ToLower(review.GetState()))
	if state != models.ReviewApproved && state != models.ReviewChangesRequested {
		state = models.ReviewCommented
	}

	return &models.Review{
		GitHubID:      review.GetID(),
		PullRequestID: pullRequestID,
		ReviewerLogin: review.GetUser().GetLogin(),
		State:         state,
		Body:          review.GetBody(),
		CreatedAt:     review.GetSubmittedAt().Time,
	}
}
