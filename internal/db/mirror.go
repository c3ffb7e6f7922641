package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/collabhub/internal/models"
)

const pullRequestColumns = `id, github_id, number, repository_id, title, body, state, author_id, author_login, author_avatar, assignees, reviewers, labels, head_ref, base_ref, additions, deletions, changed_files, html_url, ai_analysis, ai_last_analyzed, created_at, updated_at`

func scanPullRequest(row rowScanner) (*models.PullRequest, error) {
	var pr models.PullRequest
	var assignees, reviewers, labels string
	var analysis sql.NullString
	var lastAnalyzed sql.NullTime
	err := row.Scan(
		&pr.ID,
		&pr.GitHubID,
		&pr.Number,
		&pr.RepositoryID,
		&pr.Title,
		&pr.Body,
		&pr.State,
		&pr.AuthorID,
		&pr.AuthorLogin,
		&pr.AuthorAvatar,
		&assignees,
		&reviewers,
		&labels,
		&pr.Branch.Head,
		&pr.Branch.Base,
		&pr.Stats.Additions,
		&pr.Stats.Deletions,
		&pr.Stats.ChangedFiles,
		&pr.HTMLURL,
		&analysis,
		&lastAnalyzed,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.Assignees = decodeStrings(assignees)
	pr.Reviewers = decodeStrings(reviewers)
	pr.Labels = decodeStrings(labels)

	if analysis.Valid && lastAnalyzed.Valid {
		var a models.PRAnalysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode pull request analysis: %w", err)
		}
		a.LastAnalyzed = lastAnalyzed.Time
		pr.AIAnalysis = &a
	}
	return &pr, nil
}

// analysisColumns returns the values of the ai_analysis and ai_last_analyzed
// columns. Both are NULL for a record that was never analyzed.
func analysisColumns(analysis any, lastAnalyzed time.Time, present bool) (*string, *time.Time) {
	if !present {
		return nil, nil
	}
	encoded := encodeJSON(analysis)
	ts := lastAnalyzed.UTC()
	return &encoded, &ts
}

// CreatePullRequestIfAbsent inserts the pull request unless a mirror with the
// same GitHub id exists, and returns the stored record. The boolean reports
// whether this call created it.
func (db *DB) CreatePullRequestIfAbsent(ctx context.Context, pr *models.PullRequest) (*models.PullRequest, bool, error) {
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}

	var lastAnalyzed time.Time
	if pr.AIAnalysis != nil {
		lastAnalyzed = pr.AIAnalysis.LastAnalyzed
	}
	analysis, analyzedAt := analysisColumns(pr.AIAnalysis, lastAnalyzed, pr.AIAnalysis != nil)

	query := `
	INSERT INTO pull_requests (` + pullRequestColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(github_id) DO NOTHING
	`

	n, err := db.x.exec(ctx, query,
		pr.ID,
		pr.GitHubID,
		pr.Number,
		pr.RepositoryID,
		pr.Title,
		pr.Body,
		string(pr.State),
		pr.AuthorID,
		pr.AuthorLogin,
		pr.AuthorAvatar,
		encodeJSON(nonNil(pr.Assignees)),
		encodeJSON(nonNil(pr.Reviewers)),
		encodeJSON(nonNil(pr.Labels)),
		pr.Branch.Head,
		pr.Branch.Base,
		pr.Stats.Additions,
		pr.Stats.Deletions,
		pr.Stats.ChangedFiles,
		pr.HTMLURL,
		analysis,
		analyzedAt,
		pr.CreatedAt,
		pr.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save pull request: %w", err)
	}

	stored, err := db.GetPullRequestByGitHubID(ctx, pr.GitHubID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// RefreshPullRequest overwrites the upstream fields of an existing mirror.
// The AI analysis is never touched.
func (db *DB) RefreshPullRequest(ctx context.Context, pr *models.PullRequest) error {
	query := `
	UPDATE pull_requests SET
		number = ?,
		title = ?,
		body = ?,
		state = ?,
		author_login = ?,
		author_avatar = ?,
		assignees = ?,
		reviewers = ?,
		labels = ?,
		head_ref = ?,
		base_ref = ?,
		additions = ?,
		deletions = ?,
		changed_files = ?,
		html_url = ?,
		created_at = ?,
		updated_at = ?
	WHERE github_id = ?
	`

	n, err := db.x.exec(ctx, query,
		pr.Number,
		pr.Title,
		pr.Body,
		string(pr.State),
		pr.AuthorLogin,
		pr.AuthorAvatar,
		encodeJSON(nonNil(pr.Assignees)),
		encodeJSON(nonNil(pr.Reviewers)),
		encodeJSON(nonNil(pr.Labels)),
		pr.Branch.Head,
		pr.Branch.Base,
		pr.Stats.Additions,
		pr.Stats.Deletions,
		pr.Stats.ChangedFiles,
		pr.HTMLURL,
		pr.CreatedAt,
		pr.UpdatedAt,
		pr.GitHubID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh pull request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pull request: %w", models.ErrNotFound)
	}
	return nil
}

// GetPullRequestByGitHubID gets a pull request by upstream id
func (db *DB) GetPullRequestByGitHubID(ctx context.Context, githubID int64) (*models.PullRequest, error) {
	row := db.x.queryRow(ctx, `SELECT `+pullRequestColumns+` FROM pull_requests WHERE github_id = ?`, githubID)
	pr, err := scanPullRequest(row)
	if err != nil {
		return nil, notFound("pull request", err)
	}
	return pr, nil
}

// GetPullRequestByNumber gets a pull request by its number within a repository
func (db *DB) GetPullRequestByNumber(ctx context.Context, repoID string, number int) (*models.PullRequest, error) {
	row := db.x.queryRow(ctx, `SELECT `+pullRequestColumns+` FROM pull_requests WHERE repository_id = ? AND number = ?`, repoID, number)
	pr, err := scanPullRequest(row)
	if err != nil {
		return nil, notFound("pull request", err)
	}
	return pr, nil
}

const issueColumns = `id, github_id, number, repository_id, title, body, state, author_id, author_login, author_avatar, assignees, labels, priority, html_url, ai_analysis, ai_last_analyzed, created_at, updated_at`

func scanIssue(row rowScanner) (*models.Issue, error) {
	var issue models.Issue
	var assignees, labels string
	var analysis sql.NullString
	var lastAnalyzed sql.NullTime
	err := row.Scan(
		&issue.ID,
		&issue.GitHubID,
		&issue.Number,
		&issue.RepositoryID,
		&issue.Title,
		&issue.Body,
		&issue.State,
		&issue.AuthorID,
		&issue.AuthorLogin,
		&issue.AuthorAvatar,
		&assignees,
		&labels,
		&issue.Priority,
		&issue.HTMLURL,
		&analysis,
		&lastAnalyzed,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Assignees = decodeStrings(assignees)
	issue.Labels = decodeStrings(labels)

	if analysis.Valid && lastAnalyzed.Valid {
		var a models.IssueAnalysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode issue analysis: %w", err)
		}
		a.LastAnalyzed = lastAnalyzed.Time
		issue.AIAnalysis = &a
	}
	return &issue, nil
}

// CreateIssueIfAbsent inserts the issue unless a mirror with the same GitHub
// id exists, and returns the stored record. The boolean reports whether this
// call created it.
func (db *DB) CreateIssueIfAbsent(ctx context.Context, issue *models.Issue) (*models.Issue, bool, error) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Priority == "" {
		issue.Priority = models.PriorityMedium
	}

	var lastAnalyzed time.Time
	if issue.AIAnalysis != nil {
		lastAnalyzed = issue.AIAnalysis.LastAnalyzed
	}
	analysis, analyzedAt := analysisColumns(issue.AIAnalysis, lastAnalyzed, issue.AIAnalysis != nil)

	query := `
	INSERT INTO issues (` + issueColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(github_id) DO NOTHING
	`

	n, err := db.x.exec(ctx, query,
		issue.ID,
		issue.GitHubID,
		issue.Number,
		issue.RepositoryID,
		issue.Title,
		issue.Body,
		string(issue.State),
		issue.AuthorID,
		issue.AuthorLogin,
		issue.AuthorAvatar,
		encodeJSON(nonNil(issue.Assignees)),
		encodeJSON(nonNil(issue.Labels)),
		string(issue.Priority),
		issue.HTMLURL,
		analysis,
		analyzedAt,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save issue: %w", err)
	}

	stored, err := db.GetIssueByGitHubID(ctx, issue.GitHubID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// RefreshIssue overwrites the upstream fields of an existing mirror.
// Priority and AI analysis are local and never touched.
func (db *DB) RefreshIssue(ctx context.Context, issue *models.Issue) error {
	query := `
	UPDATE issues SET
		number = ?,
		title = ?,
		body = ?,
		state = ?,
		author_login = ?,
		author_avatar = ?,
		assignees = ?,
		labels = ?,
		html_url = ?,
		created_at = ?,
		updated_at = ?
	WHERE github_id = ?
	`

	n, err := db.x.exec(ctx, query,
		issue.Number,
		issue.Title,
		issue.Body,
		string(issue.State),
		issue.AuthorLogin,
		issue.AuthorAvatar,
		encodeJSON(nonNil(issue.Assignees)),
		encodeJSON(nonNil(issue.Labels)),
		issue.HTMLURL,
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.GitHubID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh issue: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("issue: %w", models.ErrNotFound)
	}
	return nil
}

// GetIssueByGitHubID gets an issue by upstream id
func (db *DB) GetIssueByGitHubID(ctx context.Context, githubID int64) (*models.Issue, error) {
	row := db.x.queryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE github_id = ?`, githubID)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, notFound("issue", err)
	}
	return issue, nil
}

// GetIssueByNumber gets an issue by its number within a repository
func (db *DB) GetIssueByNumber(ctx context.Context, repoID string, number int) (*models.Issue, error) {
	row := db.x.queryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE repository_id = ? AND number = ?`, repoID, number)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, notFound("issue", err)
	}
	return issue, nil
}

// AddComment appends a comment to its parent's log. A comment that was
// already recorded is not added again and false is returned.
func (db *DB) AddComment(ctx context.Context, comment *models.Comment) (bool, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.Kind == "" {
		comment.Kind = models.CommentConversation
	}

	query := `
	INSERT INTO comments (id, github_id, kind, parent_type, parent_id, author_login, body, html_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, github_id) DO NOTHING
	`

	n, err := db.x.exec(ctx, query,
		comment.ID,
		comment.GitHubID,
		comment.Kind,
		comment.ParentType,
		comment.ParentID,
		comment.AuthorLogin,
		comment.Body,
		comment.HTMLURL,
		comment.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save comment: %w", err)
	}
	return n > 0, nil
}

// ListComments returns the comment log of a pull request or issue, oldest first
func (db *DB) ListComments(ctx context.Context, parentType, parentID string) ([]models.Comment, error) {
	query := `
	SELECT id, github_id, kind, parent_type, parent_id, author_login, body, html_url, created_at
	FROM comments
	WHERE parent_type = ? AND parent_id = ?
	ORDER BY created_at, github_id
	`

	rows, err := db.x.query(ctx, query, parentType, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.GitHubID, &c.Kind, &c.ParentType, &c.ParentID, &c.AuthorLogin, &c.Body, &c.HTMLURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// AddReview appends a review to a pull request's log. A review that was
// already recorded is not added again and false is returned.
func (db *DB) AddReview(ctx context.Context, review *models.Review) (bool, error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}

	query := `
	INSERT INTO reviews (id, github_id, pull_request_id, reviewer_login, state, body, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(github_id) DO NOTHING
	`

	n, err := db.x.exec(ctx, query,
		review.ID,
		review.GitHubID,
		review.PullRequestID,
		review.ReviewerLogin,
		string(review.State),
		review.Body,
		review.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save review: %w", err)
	}
	return n > 0, nil
}

// ListReviews returns the review log of a pull request, oldest first
func (db *DB) ListReviews(ctx context.Context, pullRequestID string) ([]models.Review, error) {
	query := `
	SELECT id, github_id, pull_request_id, reviewer_login, state, body, created_at
	FROM reviews
	WHERE pull_request_id = ?
	ORDER BY created_at, github_id
	`

	rows, err := db.x.query(ctx, query, pullRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.GitHubID, &r.PullRequestID, &r.ReviewerLogin, &r.State, &r.Body, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}
