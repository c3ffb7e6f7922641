package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/models"
	"golang.org/x/oauth2"
)

// Client is the set of upstream calls made on behalf of one user token.
// Every call is a single request; there is no retry and no pagination
// beyond one page of the configured size.
type Client interface {
	ListRepositories(ctx context.Context) ([]*github.Repository, error)
	ListPullRequests(ctx context.Context, owner, name, state string) ([]*github.PullRequest, error)
	ListIssues(ctx context.Context, owner, name, state string) ([]*github.Issue, error)
	CreateIssue(ctx context.Context, owner, name string, req *github.IssueRequest) (*github.Issue, error)
	GetPullRequestDiff(ctx context.Context, owner, name string, number int) (string, error)
	GetAuthenticatedUser(ctx context.Context) (*github.User, string, error)
}

// Factory builds a Client bound to a user's access token
type Factory func(token string) Client

// NewFactory returns a Factory that builds GitHubClients from cfg
func NewFactory(cfg config.GitHubConfig) Factory {
	return func(token string) Client {
		return NewGitHubClient(token, cfg)
	}
}

// GitHubClient represents a client for the GitHub API
type GitHubClient struct {
	client   *github.Client
	graphql  *GraphQLClient
	pageSize int
}

var _ Client = (*GitHubClient)(nil)

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(token string, cfg config.GitHubConfig) *GitHubClient {
	var tc *http.Client

	if token != "" {
		// Create an authenticated client if a token is provided
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(tc)
	if cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			if !strings.HasSuffix(u.Path, "/") {
				u.Path += "/"
			}
			client.BaseURL = u
		} else {
			log.Printf("Warning: ignoring invalid GitHub base URL %q: %v", cfg.BaseURL, err)
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &GitHubClient{
		client:   client,
		graphql:  NewGraphQLClient(tc, client.BaseURL.String()),
		pageSize: pageSize,
	}
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrUpstream, err)
}

// ListRepositories lists the repositories of the authenticated user
func (c *GitHubClient) ListRepositories(ctx context.Context) ([]*github.Repository, error) {
	opts := &github.RepositoryListOptions{
		Sort: "updated",
		ListOptions: github.ListOptions{
			PerPage: c.pageSize,
		},
	}

	repos, _, err := c.client.Repositories.List(ctx, "", opts)
	if err != nil {
		return nil, upstream("failed to list repositories", err)
	}
	return repos, nil
}

// ListPullRequests lists pull requests of a repository in the given upstream
// state (open, closed or all). Change statistics are filled in from the
// GraphQL API when available.
func (c *GitHubClient) ListPullRequests(ctx context.Context, owner, name, state string) ([]*github.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:     state,
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: c.pageSize,
		},
	}

	prs, _, err := c.client.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		return nil, upstream("failed to list pull requests", err)
	}

	if len(prs) > 0 && c.graphql != nil {
		stats, err := c.graphql.PullRequestStats(ctx, owner, name, state, c.pageSize)
		if err != nil {
			log.Printf("Warning: failed to fetch pull request stats for %s/%s: %v", owner, name, err)
		} else {
			applyStats(prs, stats)
		}
	}

	return prs, nil
}

func applyStats(prs []*github.PullRequest, stats map[int]models.ChangeStats) {
	for _, pr := range prs {
		s, ok := stats[pr.GetNumber()]
		if !ok {
			continue
		}
		pr.Additions = github.Int(s.Additions)
		pr.Deletions = github.Int(s.Deletions)
		pr.ChangedFiles = github.Int(s.ChangedFiles)
	}
}

// ListIssues lists issues of a repository in the given upstream state
func (c *GitHubClient) ListIssues(ctx context.Context, owner, name, state string) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:     state,
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: c.pageSize,
		},
	}

	issues, _, err := c.client.Issues.ListByRepo(ctx, owner, name, opts)
	if err != nil {
		return nil, upstream("failed to list issues", err)
	}
	return issues, nil
}

// CreateIssue creates an issue upstream
func (c *GitHubClient) CreateIssue(ctx context.Context, owner, name string, req *github.IssueRequest) (*github.Issue, error) {
	issue, _, err := c.client.Issues.Create(ctx, owner, name, req)
	if err != nil {
		return nil, upstream("failed to create issue", err)
	}
	return issue, nil
}

// GetPullRequestDiff gets the unified diff of a pull request
func (c *GitHubClient) GetPullRequestDiff(ctx context.Context, owner, name string, number int) (string, error) {
	diff, _, err := c.client.PullRequests.GetRaw(ctx, owner, name, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", upstream("failed to get pull request diff", err)
	}
	return diff, nil
}

// GetAuthenticatedUser gets the token's user and their primary email.
// The email falls back to the public profile email when the token cannot
// read the email list.
func (c *GitHubClient) GetAuthenticatedUser(ctx context.Context) (*github.User, string, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return nil, "", upstream("failed to get user", err)
	}

	email := user.GetEmail()
	emails, _, err := c.client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		log.Printf("Warning: failed to list emails for %s: %v", user.GetLogin(), err)
		return user, email, nil
	}
	for _, e := range emails {
		if e.GetPrimary() {
			email = e.GetEmail()
			break
		}
	}
	return user, email, nil
}
