package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wesm/collabhub/internal/models"
)

var _ Store = (*DB)(nil)

// DB is the mirror store. Queries are written once with ? placeholders and
// run against either SQLite (database/sql) or Postgres (pgxpool).
type DB struct {
	x      execer
	schema string
}

// New opens a SQLite database
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{x: sqlExecer{db: sqlDB}, schema: schemaSQLite}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize(ctx context.Context) error {
	if _, err := db.x.exec(ctx, db.schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Health pings the underlying database
func (db *DB) Health(ctx context.Context) error {
	return db.x.ping(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.x.close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func notFound(what string, err error) error {
	if isNoRows(err) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

const userColumns = `id, github_id, username, email, name, avatar_url, access_token, plan, settings, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var settings string
	err := row.Scan(
		&user.ID,
		&user.GitHubID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.AccessToken,
		&user.Plan,
		&settings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Settings = models.DefaultUserSettings()
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &user.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode user settings: %w", err)
		}
	}
	return &user, nil
}

// UpsertUser inserts a user keyed by GitHub id, or refreshes the profile and
// access token of an existing one. Settings and plan of an existing user are kept.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	plan := user.Plan
	if plan == "" {
		plan = "free"
	}

	query := `
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(github_id) DO UPDATE SET
		username = excluded.username,
		email = excluded.email,
		name = excluded.name,
		avatar_url = excluded.avatar_url,
		access_token = excluded.access_token,
		updated_at = excluded.updated_at
	`

	_, err := db.x.exec(ctx, query,
		uuid.NewString(),
		user.GitHubID,
		user.Username,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.AccessToken,
		plan,
		encodeJSON(models.DefaultUserSettings()),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	return db.GetUserByGitHubID(ctx, user.GitHubID)
}

// GetUser gets a user by local id
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := db.x.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetUserByGitHubID gets a user by upstream account id
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	row := db.x.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// UpdateUserSettings replaces the settings sub-record of a user
func (db *DB) UpdateUserSettings(ctx context.Context, id string, settings models.UserSettings) error {
	n, err := db.x.exec(ctx, `UPDATE users SET settings = ?, updated_at = ? WHERE id = ?`,
		encodeJSON(settings), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user settings: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	return nil
}

const repositoryColumns = `id, github_id, name, full_name, owner_id, private, description, language, stars, watchers, forks, ai_enabled, settings, updated_at`

func scanRepository(row rowScanner) (*models.Repository, error) {
	var repo models.Repository
	var settings string
	err := row.Scan(
		&repo.ID,
		&repo.GitHubID,
		&repo.Name,
		&repo.FullName,
		&repo.OwnerID,
		&repo.Private,
		&repo.Description,
		&repo.Language,
		&repo.Stars,
		&repo.Watchers,
		&repo.Forks,
		&repo.AIEnabled,
		&settings,
		&repo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.Settings = models.DefaultRepositorySettings()
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &repo.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode repository settings: %w", err)
		}
	}
	return &repo, nil
}

// CreateRepositoryIfAbsent inserts the repository unless a mirror with the
// same GitHub id exists, and returns the stored record. The boolean reports
// whether this call created it.
func (db *DB) CreateRepositoryIfAbsent(ctx context.Context, repo *models.Repository) (*models.Repository, bool, error) {
	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}

	query := `
	INSERT INTO repositories (` + repositoryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(github_id) DO NOTHING
	`

	n, err := db.x.exec(ctx, query,
		repo.ID,
		repo.GitHubID,
		repo.Name,
		repo.FullName,
		repo.OwnerID,
		repo.Private,
		repo.Description,
		repo.Language,
		repo.Stars,
		repo.Watchers,
		repo.Forks,
		repo.AIEnabled,
		encodeJSON(repo.Settings),
		repo.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save repository: %w", err)
	}

	stored, err := db.GetRepositoryByGitHubID(ctx, repo.GitHubID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// RefreshRepository overwrites the upstream snapshot fields of an existing mirror
func (db *DB) RefreshRepository(ctx context.Context, repo *models.Repository) error {
	query := `
	UPDATE repositories SET
		name = ?,
		full_name = ?,
		private = ?,
		description = ?,
		language = ?,
		stars = ?,
		watchers = ?,
		forks = ?,
		updated_at = ?
	WHERE github_id = ?
	`

	n, err := db.x.exec(ctx, query,
		repo.Name,
		repo.FullName,
		repo.Private,
		repo.Description,
		repo.Language,
		repo.Stars,
		repo.Watchers,
		repo.Forks,
		repo.UpdatedAt,
		repo.GitHubID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh repository: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository: %w", models.ErrNotFound)
	}
	return nil
}

// GetRepository gets a repository by local id
func (db *DB) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	row := db.x.queryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if err != nil {
		return nil, notFound("repository", err)
	}
	return repo, nil
}

// GetRepositoryByGitHubID gets a repository by upstream id
func (db *DB) GetRepositoryByGitHubID(ctx context.Context, githubID int64) (*models.Repository, error) {
	row := db.x.queryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE github_id = ?`, githubID)
	repo, err := scanRepository(row)
	if err != nil {
		return nil, notFound("repository", err)
	}
	return repo, nil
}

// UpdateRepositorySettings stores the AI gate and behavior toggles of a repository
func (db *DB) UpdateRepositorySettings(ctx context.Context, id string, aiEnabled bool, settings models.RepositorySettings) error {
	n, err := db.x.exec(ctx, `UPDATE repositories SET ai_enabled = ?, settings = ? WHERE id = ?`,
		aiEnabled, encodeJSON(settings), id)
	if err != nil {
		return fmt.Errorf("failed to update repository settings: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository: %w", models.ErrNotFound)
	}
	return nil
}

// AddCollaborator records userID as a collaborator on repoID. Adding twice is a no-op.
func (db *DB) AddCollaborator(ctx context.Context, repoID, userID string) error {
	query := `
	INSERT INTO repository_collaborators (repository_id, user_id)
	VALUES (?, ?)
	ON CONFLICT(repository_id, user_id) DO NOTHING
	`
	if _, err := db.x.exec(ctx, query, repoID, userID); err != nil {
		return fmt.Errorf("failed to save collaborator: %w", err)
	}
	return nil
}

// ListCollaborators lists the users collaborating on a repository
func (db *DB) ListCollaborators(ctx context.Context, repoID string) ([]*models.User, error) {
	query := `
	SELECT u.id, u.github_id, u.username, u.email, u.name, u.avatar_url, u.access_token, u.plan, u.settings, u.created_at, u.updated_at
	FROM users u
	JOIN repository_collaborators c ON c.user_id = u.id
	WHERE c.repository_id = ?
	ORDER BY u.username
	`

	rows, err := db.x.query(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	return users, nil
}

// DashboardStats counts mirrors across the repositories ownerID owns
func (db *DB) DashboardStats(ctx context.Context, ownerID string) (*models.DashboardStats, error) {
	query := `
	SELECT
		(SELECT COUNT(*) FROM repositories WHERE owner_id = ?),
		(SELECT COUNT(*) FROM pull_requests p JOIN repositories r ON r.id = p.repository_id WHERE r.owner_id = ?),
		(SELECT COUNT(*) FROM pull_requests p JOIN repositories r ON r.id = p.repository_id WHERE r.owner_id = ? AND p.state = 'open'),
		(SELECT COUNT(*) FROM issues i JOIN repositories r ON r.id = i.repository_id WHERE r.owner_id = ?),
		(SELECT COUNT(*) FROM issues i JOIN repositories r ON r.id = i.repository_id WHERE r.owner_id = ? AND i.state = 'open'),
		(SELECT COUNT(*) FROM pull_requests p JOIN repositories r ON r.id = p.repository_id WHERE r.owner_id = ? AND p.ai_last_analyzed IS NOT NULL)
		+ (SELECT COUNT(*) FROM issues i JOIN repositories r ON r.id = i.repository_id WHERE r.owner_id = ? AND i.ai_last_analyzed IS NOT NULL)
	`

	var stats models.DashboardStats
	err := db.x.queryRow(ctx, query, ownerID, ownerID, ownerID, ownerID, ownerID, ownerID, ownerID).Scan(
		&stats.Repositories,
		&stats.PullRequests.Total,
		&stats.PullRequests.Open,
		&stats.Issues.Total,
		&stats.Issues.Open,
		&stats.AIAnalyses,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard stats: %w", err)
	}
	return &stats, nil
}
