package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/api"
	"github.com/wesm/collabhub/internal/db"
	"github.com/wesm/collabhub/internal/models"
	"golang.org/x/sync/errgroup"
)

// Notifier is told about issues created through the dashboard
type Notifier interface {
	IssueCreated(ctx context.Context, repo *models.Repository, issue *models.Issue)
}

// Syncer reconciles upstream GitHub state with the local mirror
type Syncer struct {
	store     db.Store
	clients   api.Factory
	annotator ai.Annotator
	notifier  Notifier
	// Default number of workers for parallel processing
	workers      int
	maxDiffBytes int
	now          func() time.Time
}

// New creates a new syncer. annotator and notifier may be nil.
func New(store db.Store, clients api.Factory, annotator ai.Annotator, notifier Notifier) *Syncer {
	return &Syncer{
		store:        store,
		clients:      clients,
		annotator:    annotator,
		notifier:     notifier,
		workers:      5, // Default to 5 workers as a reasonable balance
		maxDiffBytes: 12000,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetWorkers sets the number of items mirrored in parallel
func (s *Syncer) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 10 {
		workers = 10 // Cap at 10 to avoid overwhelming GitHub and the AI provider
	}
	s.workers = workers
}

// SetMaxDiffBytes bounds the diff text sent for pull request review
func (s *Syncer) SetMaxDiffBytes(n int) {
	if n > 0 {
		s.maxDiffBytes = n
	}
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}

// SyncRepositories mirrors the caller's upstream repositories. A repository
// first mirrored by another user records the caller as a collaborator.
func (s *Syncer) SyncRepositories(ctx context.Context, user *models.User) ([]*models.Repository, error) {
	repos, err := s.clients(user.AccessToken).ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*models.Repository, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, gh := range repos {
		g.Go(func() error {
			repo, err := s.mirrorRepository(gctx, user, gh)
			if err != nil {
				return fmt.Errorf("repository %s: %w", gh.GetFullName(), err)
			}
			results[i] = repo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("Synced %d repositories for %s", len(results), user.Username)
	return results, nil
}

func (s *Syncer) mirrorRepository(ctx context.Context, user *models.User, gh *github.Repository) (*models.Repository, error) {
	upstream := api.ConvertGitHubRepository(gh)
	upstream.OwnerID = user.ID
	upstream.AIEnabled = true
	upstream.Settings = models.DefaultRepositorySettings()

	stored, created, err := s.store.CreateRepositoryIfAbsent(ctx, upstream)
	if err != nil {
		return nil, err
	}
	if !created {
		stored.MergeUpstream(upstream)
		if err := s.store.RefreshRepository(ctx, stored); err != nil {
			return nil, err
		}
	}
	if stored.OwnerID != user.ID {
		if err := s.store.AddCollaborator(ctx, stored.ID, user.ID); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// AuthorizeRepository loads a repository the user owns or collaborates on
func (s *Syncer) AuthorizeRepository(ctx context.Context, user *models.User, repoID string) (*models.Repository, error) {
	repo, err := s.store.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo.OwnerID == user.ID {
		return repo, nil
	}

	collaborators, err := s.store.ListCollaborators(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range collaborators {
		if c.ID == user.ID {
			return repo, nil
		}
	}
	return nil, fmt.Errorf("repository %s: %w", repo.FullName, models.ErrForbidden)
}

// upstreamPRState maps a requested pull request state to the GitHub list state
func upstreamPRState(state models.PRState) (string, error) {
	switch state {
	case "", models.PRStateOpen:
		return "open", nil
	case models.PRStateClosed, models.PRStateMerged:
		return "closed", nil
	default:
		return "", fmt.Errorf("invalid pull request state %q: %w", state, models.ErrValidation)
	}
}

// SyncPullRequests lists a repository's pull requests in state, mirroring new
// ones and refreshing known ones. closed excludes merged pull requests.
// Any upstream failure aborts the whole list.
func (s *Syncer) SyncPullRequests(ctx context.Context, user *models.User, repoID string, state models.PRState) ([]*models.PullRequest, error) {
	listState, err := upstreamPRState(state)
	if err != nil {
		return nil, err
	}
	if state == "" {
		state = models.PRStateOpen
	}

	repo, err := s.AuthorizeRepository(ctx, user, repoID)
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseRepositoryString(repo.FullName)
	if err != nil {
		return nil, err
	}

	client := s.clients(user.AccessToken)
	prs, err := client.ListPullRequests(ctx, owner, name, listState)
	if err != nil {
		return nil, err
	}

	var wanted []*github.PullRequest
	for _, pr := range prs {
		if api.ConvertGitHubPullRequest(pr).State == state {
			wanted = append(wanted, pr)
		}
	}

	results := make([]*models.PullRequest, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, gh := range wanted {
		g.Go(func() error {
			pr, _, err := s.mirrorPullRequest(gctx, client, repo, gh)
			if err != nil {
				return fmt.Errorf("pull request #%d: %w", gh.GetNumber(), err)
			}
			results[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("Synced %d %s pull requests for %s", len(results), state, repo.FullName)
	return results, nil
}

// MirrorPullRequest mirrors one upstream pull request of a known repository,
// annotating it if it is new. The boolean reports whether this call created
// the mirror. The repository owner's token is used for the diff.
func (s *Syncer) MirrorPullRequest(ctx context.Context, repo *models.Repository, gh *github.PullRequest) (*models.PullRequest, bool, error) {
	return s.mirrorPullRequest(ctx, s.ownerClient(ctx, repo), repo, gh)
}

// RefreshPullRequest overwrites the upstream fields of an already mirrored
// pull request. It never annotates.
func (s *Syncer) RefreshPullRequest(ctx context.Context, repo *models.Repository, gh *github.PullRequest) (*models.PullRequest, error) {
	upstream := s.convertPullRequest(ctx, repo, gh)

	existing, err := s.store.GetPullRequestByGitHubID(ctx, upstream.GitHubID)
	if err != nil {
		return nil, err
	}
	existing.MergeUpstream(upstream)
	if err := s.store.RefreshPullRequest(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Syncer) convertPullRequest(ctx context.Context, repo *models.Repository, gh *github.PullRequest) *models.PullRequest {
	pr := api.ConvertGitHubPullRequest(gh)
	pr.RepositoryID = repo.ID
	pr.AuthorID = s.localUserID(ctx, gh.GetUser().GetID())
	return pr
}

func (s *Syncer) mirrorPullRequest(ctx context.Context, client api.Client, repo *models.Repository, gh *github.PullRequest) (*models.PullRequest, bool, error) {
	upstream := s.convertPullRequest(ctx, repo, gh)

	existing, err := s.store.GetPullRequestByGitHubID(ctx, upstream.GitHubID)
	switch {
	case err == nil:
		existing.MergeUpstream(upstream)
		if err := s.store.RefreshPullRequest(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, err
	}

	if repo.AnnotationEnabled() {
		upstream.AIAnalysis = s.annotatePullRequest(ctx, client, repo, upstream)
	}

	stored, created, err := s.store.CreatePullRequestIfAbsent(ctx, upstream)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// Another sync mirrored it first; keep its annotation
		stored.MergeUpstream(upstream)
		if err := s.store.RefreshPullRequest(ctx, stored); err != nil {
			return nil, false, err
		}
	}
	return stored, created, nil
}

func (s *Syncer) annotatePullRequest(ctx context.Context, client api.Client, repo *models.Repository, pr *models.PullRequest) *models.PRAnalysis {
	if s.annotator == nil {
		return nil
	}

	content := pr.Body
	if client != nil {
		owner, name, err := ParseRepositoryString(repo.FullName)
		if err == nil {
			diff, err := client.GetPullRequestDiff(ctx, owner, name, pr.Number)
			if err != nil {
				log.Printf("Warning: using body for %s#%d, diff unavailable: %v", repo.FullName, pr.Number, err)
			} else {
				content = truncate(diff, s.maxDiffBytes)
			}
		}
	}

	text, err := s.annotator.Annotate(ctx, ai.KindPRReview, content, ai.Context{
		Title:        pr.Title,
		Description:  pr.Body,
		FilesChanged: pr.Stats.ChangedFiles,
	})
	if err != nil {
		log.Printf("Warning: skipping analysis of %s#%d: %v", repo.FullName, pr.Number, err)
		return nil
	}

	analysis := ai.ParsePRAnalysis(text, pr.Stats, s.now())
	if analysis == nil {
		log.Printf("Warning: skipping analysis of %s#%d: reply had no suggestions", repo.FullName, pr.Number)
	}
	return analysis
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func upstreamIssueState(state models.IssueState) (string, error) {
	switch state {
	case "", models.IssueStateOpen:
		return "open", nil
	case models.IssueStateClosed:
		return "closed", nil
	default:
		return "", fmt.Errorf("invalid issue state %q: %w", state, models.ErrValidation)
	}
}

// SyncIssues lists a repository's issues in state, mirroring new ones and
// refreshing known ones. Pull requests returned by the issues endpoint are
// dropped. Any upstream failure aborts the whole list.
func (s *Syncer) SyncIssues(ctx context.Context, user *models.User, repoID string, state models.IssueState) ([]*models.Issue, error) {
	listState, err := upstreamIssueState(state)
	if err != nil {
		return nil, err
	}

	repo, err := s.AuthorizeRepository(ctx, user, repoID)
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseRepositoryString(repo.FullName)
	if err != nil {
		return nil, err
	}

	issues, err := s.clients(user.AccessToken).ListIssues(ctx, owner, name, listState)
	if err != nil {
		return nil, err
	}

	var wanted []*github.Issue
	for _, issue := range issues {
		if !issue.IsPullRequest() {
			wanted = append(wanted, issue)
		}
	}

	results := make([]*models.Issue, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, gh := range wanted {
		g.Go(func() error {
			issue, _, err := s.MirrorIssue(gctx, repo, gh)
			if err != nil {
				return fmt.Errorf("issue #%d: %w", gh.GetNumber(), err)
			}
			results[i] = issue
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("Synced %d %s issues for %s", len(results), listState, repo.FullName)
	return results, nil
}

// IssueInput is the content of an issue created through the dashboard
type IssueInput struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// CreateIssue creates an issue upstream, mirrors it and notifies
// collaborators. A blank title is rejected before any upstream call.
func (s *Syncer) CreateIssue(ctx context.Context, user *models.User, repoID string, input IssueInput) (*models.Issue, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", models.ErrValidation)
	}

	repo, err := s.AuthorizeRepository(ctx, user, repoID)
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseRepositoryString(repo.FullName)
	if err != nil {
		return nil, err
	}

	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(input.Body),
	}
	if len(input.Labels) > 0 {
		req.Labels = &input.Labels
	}
	if len(input.Assignees) > 0 {
		req.Assignees = &input.Assignees
	}

	gh, err := s.clients(user.AccessToken).CreateIssue(ctx, owner, name, req)
	if err != nil {
		return nil, err
	}

	issue, created, err := s.MirrorIssue(ctx, repo, gh)
	if err != nil {
		return nil, err
	}
	if created && s.notifier != nil {
		s.notifier.IssueCreated(ctx, repo, issue)
	}
	return issue, nil
}

func (s *Syncer) convertIssue(ctx context.Context, repo *models.Repository, gh *github.Issue) *models.Issue {
	issue := api.ConvertGitHubIssue(gh)
	issue.RepositoryID = repo.ID
	issue.AuthorID = s.localUserID(ctx, gh.GetUser().GetID())
	return issue
}

// MirrorIssue mirrors one upstream issue of a known repository, annotating
// it if it is new. The boolean reports whether this call created the mirror.
func (s *Syncer) MirrorIssue(ctx context.Context, repo *models.Repository, gh *github.Issue) (*models.Issue, bool, error) {
	upstream := s.convertIssue(ctx, repo, gh)

	existing, err := s.store.GetIssueByGitHubID(ctx, upstream.GitHubID)
	switch {
	case err == nil:
		existing.MergeUpstream(upstream)
		if err := s.store.RefreshIssue(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, err
	}

	if repo.AnnotationEnabled() {
		upstream.AIAnalysis = s.annotateIssue(ctx, repo, upstream)
	}

	stored, created, err := s.store.CreateIssueIfAbsent(ctx, upstream)
	if err != nil {
		return nil, false, err
	}
	if !created {
		stored.MergeUpstream(upstream)
		if err := s.store.RefreshIssue(ctx, stored); err != nil {
			return nil, false, err
		}
	}
	return stored, created, nil
}

// RefreshIssue overwrites the upstream fields of an already mirrored issue.
// It never annotates.
func (s *Syncer) RefreshIssue(ctx context.Context, repo *models.Repository, gh *github.Issue) (*models.Issue, error) {
	upstream := s.convertIssue(ctx, repo, gh)

	existing, err := s.store.GetIssueByGitHubID(ctx, upstream.GitHubID)
	if err != nil {
		return nil, err
	}
	existing.MergeUpstream(upstream)
	if err := s.store.RefreshIssue(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Syncer) annotateIssue(ctx context.Context, repo *models.Repository, issue *models.Issue) *models.IssueAnalysis {
	if s.annotator == nil {
		return nil
	}

	text, err := s.annotator.Annotate(ctx, ai.KindIssueAnalysis, issue.Body, ai.Context{
		Title:       issue.Title,
		Description: issue.Body,
	})
	if err != nil {
		log.Printf("Warning: skipping analysis of %s#%d: %v", repo.FullName, issue.Number, err)
		return nil
	}

	analysis := ai.ParseIssueAnalysis(text, issue.Body, s.now())
	if analysis == nil {
		log.Printf("Warning: skipping analysis of %s#%d: reply had no suggestions", repo.FullName, issue.Number)
	}
	return analysis
}

// GetPullRequest returns a mirrored pull request with its comment and review logs
func (s *Syncer) GetPullRequest(ctx context.Context, user *models.User, repoID string, number int) (*models.PullRequest, error) {
	repo, err := s.AuthorizeRepository(ctx, user, repoID)
	if err != nil {
		return nil, err
	}

	pr, err := s.store.GetPullRequestByNumber(ctx, repo.ID, number)
	if err != nil {
		return nil, err
	}
	if pr.Comments, err = s.store.ListComments(ctx, models.ParentPullRequest, pr.ID); err != nil {
		return nil, err
	}
	if pr.Reviews, err = s.store.ListReviews(ctx, pr.ID); err != nil {
		return nil, err
	}
	return pr, nil
}

// GetIssue returns a mirrored issue with its comment log
func (s *Syncer) GetIssue(ctx context.Context, user *models.User, repoID string, number int) (*models.Issue, error) {
	repo, err := s.AuthorizeRepository(ctx, user, repoID)
	if err != nil {
		return nil, err
	}

	issue, err := s.store.GetIssueByNumber(ctx, repo.ID, number)
	if err != nil {
		return nil, err
	}
	if issue.Comments, err = s.store.ListComments(ctx, models.ParentIssue, issue.ID); err != nil {
		return nil, err
	}
	return issue, nil
}

// localUserID returns the local id of the account bound to githubID, or ""
func (s *Syncer) localUserID(ctx context.Context, githubID int64) string {
	if githubID == 0 {
		return ""
	}
	user, err := s.store.GetUserByGitHubID(ctx, githubID)
	if err != nil {
		return ""
	}
	return user.ID
}

// ownerClient returns a client using the repository owner's token, or nil
func (s *Syncer) ownerClient(ctx context.Context, repo *models.Repository) api.Client {
	owner, err := s.store.GetUser(ctx, repo.OwnerID)
	if err != nil {
		log.Printf("Warning: no token for owner of %s: %v", repo.FullName, err)
		return nil
	}
	return s.clients(owner.AccessToken)
}
