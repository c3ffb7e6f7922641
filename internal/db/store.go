package db

import (
	"context"

	"github.com/wesm/collabhub/internal/models"
)

// Store is the entity mirror. Every Create*IfAbsent is an atomic
// insert-if-absent keyed by GitHub id, so concurrent syncs of the same
// upstream entity never produce two mirror records.
type Store interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error)
	UpdateUserSettings(ctx context.Context, id string, settings models.UserSettings) error

	CreateRepositoryIfAbsent(ctx context.Context, repo *models.Repository) (*models.Repository, bool, error)
	RefreshRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	GetRepositoryByGitHubID(ctx context.Context, githubID int64) (*models.Repository, error)
	UpdateRepositorySettings(ctx context.Context, id string, aiEnabled bool, settings models.RepositorySettings) error
	AddCollaborator(ctx context.Context, repoID, userID string) error
	ListCollaborators(ctx context.Context, repoID string) ([]*models.User, error)

	CreatePullRequestIfAbsent(ctx context.Context, pr *models.PullRequest) (*models.PullRequest, bool, error)
	RefreshPullRequest(ctx context.Context, pr *models.PullRequest) error
	GetPullRequestByGitHubID(ctx context.Context, githubID int64) (*models.PullRequest, error)
	GetPullRequestByNumber(ctx context.Context, repoID string, number int) (*models.PullRequest, error)

	CreateIssueIfAbsent(ctx context.Context, issue *models.Issue) (*models.Issue, bool, error)
	RefreshIssue(ctx context.Context, issue *models.Issue) error
	GetIssueByGitHubID(ctx context.Context, githubID int64) (*models.Issue, error)
	GetIssueByNumber(ctx context.Context, repoID string, number int) (*models.Issue, error)

	AddComment(ctx context.Context, comment *models.Comment) (bool, error)
	ListComments(ctx context.Context, parentType, parentID string) ([]models.Comment, error)
	AddReview(ctx context.Context, review *models.Review) (bool, error)
	ListReviews(ctx context.Context, pullRequestID string) ([]models.Review, error)

	DashboardStats(ctx context.Context, ownerID string) (*models.DashboardStats, error)
	Health(ctx context.Context) error
	Close() error
}
